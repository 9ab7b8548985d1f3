package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// LoggerMiddleware logs every request with method, path, status and latency.
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.RequestURI,
			"status", status,
			"latency", time.Since(start).String(),
			"clientIP", c.ClientIP(),
		}

		switch {
		case status >= 500:
			log.Errorw("Request completed", fields...)
		case status >= 400:
			log.Warnw("Request completed", fields...)
		default:
			log.Infow("Request completed", fields...)
		}
	}
}
