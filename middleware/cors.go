package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/config"
)

// CORS allows the configured origins, or every origin when none is configured.
func CORS() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if origins := config.CORSOrigins(); len(origins) > 0 {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", HeaderAPIKey, HeaderModel}
	cfg.ExposeHeaders = []string{"X-Convotest-Request-Id"}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}
