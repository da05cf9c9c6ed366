package middleware

import (
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/ctxkey"
	qamodel "github.com/qaforge/convotest/qa/model"
)

const (
	HeaderAPIKey = "X-Api-Key"
	HeaderModel  = "X-Model"
)

// CapabilityCredential requires the planner/judge credential on the request.
// The key only lives in the request context; it is never persisted.
func CapabilityCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		if key == "" {
			AbortWithError(c, http.StatusUnauthorized,
				errors.Wrap(qamodel.ErrAuth, "X-Api-Key header is required"))
			return
		}

		model := strings.TrimSpace(c.GetHeader(HeaderModel))
		if model == "" {
			model = config.DefaultModel
		}
		c.Set(ctxkey.ApiKey, key)
		c.Set(ctxkey.Model, model)
		c.Next()
	}
}
