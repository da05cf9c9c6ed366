package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/controller"
	"github.com/qaforge/convotest/middleware"
)

// SetApiRouter registers the authenticated API. Streaming routes are kept
// out of the gzip group; compression buffers event frames.
func SetApiRouter(router *gin.Engine) {
	router.GET("/api/status", controller.GetStatus)

	api := router.Group("/api")
	api.Use(middleware.JWTAuth())

	tools := api.Group("/tools")
	{
		stream := tools.Group("")
		stream.Use(middleware.CapabilityCredential())
		stream.POST("/test-runs", controller.ExecuteTestRun)
		stream.GET("/test-runs/ws", controller.ExecuteTestRunWS)
		stream.POST("/test-conversation", controller.TestConversation)

		read := tools.Group("")
		read.Use(gzip.Gzip(gzip.DefaultCompression))
		read.GET("/test-runs", controller.GetTestRuns)
		read.GET("/test-runs/:id", controller.GetTestRun)
	}

	agents := api.Group("/agent-configs")
	agents.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		agents.GET("", controller.GetAgentConfigs)
		agents.POST("", controller.CreateAgentConfig)
		agents.GET("/:id", controller.GetAgentConfig)
		agents.PUT("/:id", controller.UpdateAgentConfig)
	}

	personas := api.Group("/personas")
	{
		personas.GET("", controller.GetPersonas)
		personas.POST("", controller.CreatePersona)
	}
}
