package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HomeserverToken returns a middleware guarding the federation callback
// surface. The homeserver authenticates with a shared token, either as a
// Bearer header or the legacy access_token query parameter.
//
// Rejections are deliberately uniform: no hint about tenants, rooms, or
// whether the token was close.
func HomeserverToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			presented = strings.TrimPrefix(header, "Bearer ")
		} else {
			presented = c.Query("access_token")
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"errcode": "M_FORBIDDEN",
				"error":   "forbidden",
			})
			return
		}
		c.Next()
	}
}
