package controller

import (
	"context"
	"net/http"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/ctxkey"
	"github.com/qaforge/convotest/common/helper"
	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/middleware"
	"github.com/qaforge/convotest/model"
	"github.com/qaforge/convotest/monitor"
	"github.com/qaforge/convotest/qa/event"
	qamodel "github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/runner"
)

type executeTestRunRequest struct {
	TestID string `json:"testId"`
}

// ExecuteTestRun runs every (scenario, persona) pair of a stored test and
// streams progress as server-sent events. Run-level errors are answered
// with a plain JSON error before the stream opens.
func ExecuteTestRun(c *gin.Context) {
	req := new(executeTestRunRequest)
	if err := c.ShouldBindJSON(req); err != nil || req.TestID == "" {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.New("testId is required"))
		return
	}

	r := newRunner(c)
	prepared, err := r.Prepare(gmw.Ctx(c), req.TestID, c.GetString(ctxkey.OrgId), c.GetString(ctxkey.ProfileId))
	if err != nil {
		middleware.AbortWithMappedError(c, err)
		return
	}

	event.SetEventStreamHeaders(c.Writer)
	c.Status(http.StatusOK)
	sink := event.NewSink(event.NewSSEWriter(c.Writer), 0)
	// the request context ends when the observer disconnects
	streamRun(c.Request.Context(), r, prepared, sink)
}

// streamRun executes prepared into sink and closes it. It is shared by the
// SSE and websocket transports.
func streamRun(ctx context.Context, r *runner.Runner, prepared *runner.Prepared, sink *event.Sink) {
	lg := logger.FromContext(ctx).With(zap.String("run_id", prepared.Run.ID))
	if config.EnablePrometheusMetrics {
		monitor.RunStarted()
	}

	run, err := r.Execute(ctx, prepared, sink)
	if closeErr := sink.Close(); closeErr != nil {
		lg.Debug("event stream closed early", zap.Error(closeErr))
	}
	if err != nil {
		lg.Info("test run ended without complete event", zap.Error(err))
		return
	}
	lg.Debug("test run streamed",
		zap.Int("passed", run.Metrics.Passed),
		zap.Int("failed", run.Metrics.Failed))
}

// GetTestRuns lists the caller's runs, newest first, without transcripts.
func GetTestRuns(c *gin.Context) {
	offset, limit := pagination(c)
	rows, err := model.GetTestRuns(gmw.Ctx(c), c.GetString(ctxkey.ProfileId), offset, limit)
	if err != nil {
		helper.RespondError(c, err)
		return
	}

	runs := make([]*qamodel.TestRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.Domain())
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    runs,
	})
}

// GetTestRun returns one run with its transcripts. Only its creator and
// members of the organization owning the tested agent may read it.
func GetTestRun(c *gin.Context) {
	ctx := gmw.Ctx(c)
	row, err := model.GetTestRunById(ctx, c.Param("id"))
	if err != nil {
		middleware.AbortWithMappedError(c, err)
		return
	}

	if row.CreatedBy != c.GetString(ctxkey.ProfileId) {
		cfg, err := model.GetAgentConfigById(ctx, row.AgentId)
		if err != nil || cfg.OrgId != c.GetString(ctxkey.OrgId) {
			middleware.AbortWithMappedError(c, errors.Wrapf(qamodel.ErrAuthorization, "test run %s", row.Id))
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    row.Domain(),
	})
}
