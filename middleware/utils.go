package middleware

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/helper"
	"github.com/qaforge/convotest/common/logger"
	qamodel "github.com/qaforge/convotest/qa/model"
)

// AbortWithError aborts the request with an error message
func AbortWithError(c *gin.Context, statusCode int, err error) {
	lg := logger.FromContext(c)
	if statusCode < http.StatusInternalServerError {
		lg.Warn("server abort",
			zap.Int("status_code", statusCode),
			zap.Error(err))
	} else {
		lg.Error("server abort",
			zap.Int("status_code", statusCode),
			zap.Error(err))
	}

	c.JSON(statusCode, gin.H{
		"error": gin.H{
			"message": helper.MessageWithRequestId(err.Error(), c.GetString(helper.RequestIdKey)),
			"type":    "convotest_error",
		},
	})
	c.Abort()
}

// StatusForError maps run-level errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, qamodel.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, qamodel.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, qamodel.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, qamodel.ErrInvalidDefinition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithMappedError aborts with the status StatusForError picks for err.
func AbortWithMappedError(c *gin.Context, err error) {
	AbortWithError(c, StatusForError(err), err)
}
