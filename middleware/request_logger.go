package middleware

import (
	"time"

	"tailortalk/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger attaches a request-scoped zap logger to the gin context under
// "logger" and logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)

		logger := utils.GetLogger().With(zap.String("requestId", requestID))
		if id := c.Param("id"); id != "" {
			logger = logger.With(zap.String("sessionId", id))
		}
		c.Set("logger", logger)

		c.Next()

		logger.Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", getClientIP(c)),
		)
	}
}
