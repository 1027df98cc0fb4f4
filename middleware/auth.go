package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/vectorindex"
	"rag-knowledge-platform/models"
)

const callerProfileKey = "caller_profile"

// Claims carried in the bearer token issued by the identity service.
type Claims struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	config *config.Config
}

func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{config: cfg}
}

// RequireAuth validates the bearer token and stores the caller profile in
// the request context. Requests without a valid token are rejected.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearerToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Authentication token is required",
			})
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(a.config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "invalid_token",
				"message":    "Authentication token is invalid or expired",
			})
			c.Abort()
			return
		}

		profile := models.CallerProfile{
			UserID:     claims.Subject,
			Name:       claims.Name,
			Role:       vectorindex.NormalizeRole(claims.Role),
			Department: claims.Department,
		}
		c.Set(callerProfileKey, profile)
		c.Set("user_id", profile.UserID)
		c.Set("role", profile.Role)

		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie
	}
	return ""
}

// GetCallerProfile returns the authenticated caller's profile. The second
// return is false for unauthenticated requests.
func GetCallerProfile(c *gin.Context) (models.CallerProfile, bool) {
	v, exists := c.Get(callerProfileKey)
	if !exists {
		return models.CallerProfile{}, false
	}
	profile, ok := v.(models.CallerProfile)
	return profile, ok
}

// GetUserID returns the authenticated user id, or "".
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRole returns the caller's normalized role, or "".
func GetRole(c *gin.Context) string {
	if role, exists := c.Get("role"); exists {
		if r, ok := role.(string); ok {
			return r
		}
	}
	return ""
}
