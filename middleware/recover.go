package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/helper"
	"github.com/qaforge/convotest/common/logger"
)

// PanicRecover turns a handler panic into a 500. Once a stream has started
// the status line is already written, so only the connection is dropped.
func PanicRecover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(c).Error("panic detected",
					zap.Any("panic", err),
					zap.String("stacktrace", string(debug.Stack())),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path))
				if c.Writer.Written() {
					c.Abort()
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"message": helper.MessageWithRequestId(fmt.Sprintf("panic detected: %v", err), c.GetString(helper.RequestIdKey)),
						"type":    "convotest_panic",
					},
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
