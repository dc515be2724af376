package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// RequireAdminToken は Authorization: Bearer <token> を検証するミドルウェアです。
// token が空の場合はすべてのリクエストを拒否します。
func RequireAdminToken(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(expected) == 0 || !strings.HasPrefix(header, bearerPrefix) {
			abortUnauthorized(c)
			return
		}

		received := []byte(strings.TrimPrefix(header, bearerPrefix))
		if subtle.ConstantTimeCompare(expected, received) != 1 {
			abortUnauthorized(c)
			return
		}

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": "管理トークンが必要です",
	})
}
