package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminKey guards mutating routes with X-Admin-Key. An empty key leaves them open.
func AdminKey(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		if !equal(c.GetHeader("X-Admin-Key"), required) {
			unauthorized(c, "Invalid admin key")
			return
		}
		c.Next()
	}
}

// CronSecret accepts "Authorization: Bearer <secret>". Without a configured
// secret every call is rejected.
func CronSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if secret == "" || !ok || !equal(strings.TrimSpace(token), secret) {
			unauthorized(c, "Unauthorized")
			return
		}
		c.Next()
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": msg,
		},
	})
}
