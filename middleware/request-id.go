package middleware

import (
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/helper"
	"github.com/qaforge/convotest/common/logger"
)

// RequestId tags the request, its response and its logger with a request id.
// A caller supplied id is kept so runs can be correlated across services.
func RequestId() func(c *gin.Context) {
	return func(c *gin.Context) {
		id := c.GetHeader(helper.RequestIdKey)
		if id == "" {
			id = helper.GenRequestID()
		}
		c.Set(helper.RequestIdKey, id)
		c.Header(helper.RequestIdKey, id)
		gmw.SetLogger(c, logger.FromContext(c).With(zap.String("request_id", id)))
		c.Next()
	}
}
