package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func requestLogger(c *gin.Context) *zap.Logger {
	if l, ok := c.Get("logger"); ok {
		if logger, ok := l.(*zap.Logger); ok {
			return logger
		}
	}
	return GetLogger()
}

// ErrorHandler recovers panics in handlers and answers with a generic 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestLogger(c).Error("Unhandled panic", zap.Any("error", err), zap.String("path", c.FullPath()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Something went wrong on our side. Please try again.",
				})
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response. Details are for the
// client developer; never put collaborator errors in them.
func JSONError(c *gin.Context, status int, message string, details string) {
	requestLogger(c).Warn("Request rejected",
		zap.Int("status", status),
		zap.String("message", message),
		zap.String("details", details),
	)
	c.AbortWithStatusJSON(status, ErrorResponse{Message: message, Details: details})
}
