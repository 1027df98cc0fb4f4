package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-knowledge-platform/internal/vectorindex"
	"rag-knowledge-platform/models"
)

type RoleMiddleware struct{}

func NewRoleMiddleware() *RoleMiddleware {
	return &RoleMiddleware{}
}

// RequireClearance admits callers whose role clearance meets or exceeds the
// minimum role. The hierarchy is cumulative, so an ADMIN passes every guard.
func (r *RoleMiddleware) RequireClearance(minimumRole string) gin.HandlerFunc {
	required := vectorindex.Clearance(vectorindex.NormalizeRole(minimumRole))
	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "User role not found",
			})
			c.Abort()
			return
		}

		if vectorindex.Clearance(role) < required {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "forbidden",
				"message":    "Insufficient permissions",
				"details": gin.H{
					"required_role": minimumRole,
					"user_role":     role,
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AdminGuard admits only admins.
func (r *RoleMiddleware) AdminGuard() gin.HandlerFunc {
	return r.RequireClearance(models.RoleAdmin)
}

// EditorGuard admits editors and above, the tier allowed to manage
// documents and overrides.
func (r *RoleMiddleware) EditorGuard() gin.HandlerFunc {
	return r.RequireClearance(models.RoleEditor)
}
