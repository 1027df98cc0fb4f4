package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-knowledge-platform/utils"
)

// RequestSizeLimit rejects request bodies larger than maxSize bytes.
// Applied to the manual upload endpoint.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size": maxSize,
					"received": c.Request.ContentLength,
				})
			c.Abort()
			return
		}
		c.Next()
	}
}
