package logging

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware routes gin request logging through our structured logger
// instead of gin's default stdout writer.
func GinMiddleware(logger Logger) gin.HandlerFunc {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []interface{}{
			"source", "http",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("HTTP request failed", fields...)
		case status >= 400:
			logger.Warn("HTTP request rejected", fields...)
		default:
			logger.Debug("HTTP request", fields...)
		}
	}
}

// GinRecovery converts handler panics into 500 responses and logs them
func GinRecovery(logger Logger) gin.HandlerFunc {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("HTTP handler panic", "source", "http", "path", c.FullPath(), "panic", recovered)
		c.AbortWithStatusJSON(500, gin.H{"error": "internal error"})
	})
}
