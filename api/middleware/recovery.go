package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/clipfetch/pkg/logger"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 and records it with its stack
// in the error log
func Recovery(logAdapter *logger.LoggerAdapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			logAdapter.LogError("Panic recovered",
				zap.Any("panic", recovered),
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.String("route", c.FullPath()),
				zap.String("method", c.Request.Method),
				zap.Stack("stack"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
			})
		}()
		c.Next()
	}
}
