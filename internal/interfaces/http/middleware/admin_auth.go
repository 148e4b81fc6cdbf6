package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/photocatalog/backend/internal/interfaces/http/dto"
)

// AdminToken guards operator routes with a static bearer token.
// An empty token disables the check.
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(token)) != 1 {
			abortWithError(c, dto.ErrCodeUnauthorized, "A valid admin token is required")
			return
		}
		c.Next()
	}
}
