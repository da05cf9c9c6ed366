package helper

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/random"
)

// RequestIdKey is both the gin context key and the response header carrying the request id.
const RequestIdKey = "X-Convotest-Request-Id"

// GenRequestID returns a sortable, collision resistant request id.
func GenRequestID() string {
	return requestIdTime(time.Now()) + random.GetRandomNumberString(8)
}

// MessageWithRequestId appends the request id so users can quote it in bug reports.
func MessageWithRequestId(message string, id string) string {
	if id == "" {
		return message
	}
	return fmt.Sprintf("%s (request id: %s)", message, id)
}

// RespondError writes the standard error envelope without aborting the chain.
func RespondError(c *gin.Context, err error) {
	c.JSON(http.StatusOK, gin.H{
		"success": false,
		"message": MessageWithRequestId(err.Error(), c.GetString(RequestIdKey)),
	})
}
