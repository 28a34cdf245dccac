package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origin rejects websocket upgrades from origins outside the allow
// list. An empty list allows everything (local development).
func Origin(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(allowed) > 0 && strings.EqualFold(c.GetHeader("Connection"), "upgrade") {
			origin := c.GetHeader("Origin")
			ok := false
			for _, a := range allowed {
				if strings.EqualFold(a, origin) {
					ok = true
					break
				}
			}
			if !ok {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}
		c.Next()
	}
}
