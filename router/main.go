package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/graceful"
	"github.com/qaforge/convotest/middleware"
)

// SetRouter installs the shared middleware chain and every route.
func SetRouter(server *gin.Engine) {
	server.Use(
		middleware.PanicRecover(),
		middleware.RequestId(),
		middleware.CORS(),
		graceful.GinRequestTracker(),
	)
	if config.EnablePrometheusMetrics {
		server.Use(middleware.PrometheusMiddleware())
		server.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	server.GET("/healthz", func(c *gin.Context) {
		if graceful.IsDraining() {
			c.String(503, "draining")
			return
		}
		c.String(200, "ok")
	})

	SetApiRouter(server)
}
