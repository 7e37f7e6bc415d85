package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/memora-music/server/internal/utils/requestctx"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns a request id to each request, honoring an incoming
// X-Request-ID header when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestctx.KeyRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
