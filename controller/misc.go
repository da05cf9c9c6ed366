package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common"
	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/graceful"
)

func GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data": gin.H{
			"version":           common.Version,
			"start_time":        common.StartTime,
			"default_model":     config.DefaultModel,
			"run_concurrency":   config.RunConcurrency,
			"max_planned_turns": config.MaxPlannedTurns,
			"redis":             common.IsRedisEnabled(),
			"metrics":           config.EnablePrometheusMetrics,
			"draining":          graceful.IsDraining(),
		},
	})
}
