package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ServiceTokenMiddleware guards the sync API with a shared bearer token.
// An empty configured token disables the check, which is the expected
// setup for local development.
func ServiceTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented := strings.TrimSpace(c.GetHeader("Authorization"))
		if strings.HasPrefix(strings.ToLower(presented), "bearer ") {
			presented = strings.TrimSpace(presented[7:])
		}
		if presented == "" {
			presented = c.GetHeader("token")
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
