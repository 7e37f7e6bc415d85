package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/memora-music/server/internal/shared/logger"
	"github.com/memora-music/server/internal/shared/response"
	"github.com/memora-music/server/internal/utils/requestctx"
)

// Recovery recovers from panics and returns a 500 response.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"request_id", requestctx.RequestID(c),
					"stack", string(debug.Stack()),
				)
				response.Error(c, http.StatusInternalServerError, "Erro interno do servidor", nil)
				c.Abort()
			}
		}()
		c.Next()
	}
}
