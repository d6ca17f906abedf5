package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/playletworks/drama-api/common/helper"
	"github.com/playletworks/drama-api/common/logger"
)

// PanicRecover converts handler panics into a 500 response instead of tearing
// down the process.
func PanicRecover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Logger.Error("panic detected",
					zap.Any("panic", err),
					zap.String("stacktrace", string(debug.Stack())),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path))
				c.JSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"message": helper.MessageWithRequestId(
						"internal server error", c.GetString(helper.RequestIdKey)),
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
