package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LoggingMiddleware struct {
	logger *zap.Logger
}

func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.With(zap.String("component", "http")),
	}
}

func (lm *LoggingMiddleware) LogRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if strings.HasPrefix(c.Request.URL.Path, "/health") {
			return
		}

		fields := []zap.Field{
			zap.String("request_id", RequestID(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.Int("size", c.Writer.Size()),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := c.GetString("userID"); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			lm.logger.Error("HTTP Request", fields...)
		case status >= 400:
			lm.logger.Warn("HTTP Request", fields...)
		default:
			lm.logger.Info("HTTP Request", fields...)
		}
	}
}
