// Package middleware holds the gin middleware of the operator API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/photocatalog/backend/internal/interfaces/http/dto"
)

// abortWithError writes the standard error envelope and stops the chain.
func abortWithError(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code),
		dto.NewErrorResponseWithRequestID(code, message, c.GetString("request_id")))
}

// BodyLimit rejects requests whose declared length exceeds maxBytes and caps
// reads of bodies sent without a length.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			abortWithError(c, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
