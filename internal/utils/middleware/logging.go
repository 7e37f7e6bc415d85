package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memora-music/server/internal/shared/logger"
	"github.com/memora-music/server/internal/utils/metrics"
	"github.com/memora-music/server/internal/utils/requestctx"
)

// Logging logs each request and records HTTP metrics.
func Logging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		routePath := c.FullPath()
		if routePath == "" {
			routePath = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, routePath, status, duration)

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", requestctx.RequestID(c),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("request completed", fields...)
		case status >= 400:
			log.Warn("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
