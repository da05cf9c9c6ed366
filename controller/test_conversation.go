package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/ctxkey"
	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/middleware"
	"github.com/qaforge/convotest/qa/event"
	qamodel "github.com/qaforge/convotest/qa/model"
)

// testConversationRequest runs one scenario against an inline definition,
// used by editors to try a config before saving it.
type testConversationRequest struct {
	Definition qamodel.TestDefinition `json:"definition"`
	Scenario   qamodel.Scenario       `json:"scenario"`
	PersonaID  string                 `json:"personaId"`
}

// TestConversation streams a single conversation and its verdict as
// server-sent events. Nothing is persisted.
func TestConversation(c *gin.Context) {
	req := new(testConversationRequest)
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}

	def := req.Definition
	if def.ID == "" {
		def.ID = "inline"
	}
	def.OrgID = c.GetString(ctxkey.OrgId)
	def.Scenarios = []qamodel.Scenario{req.Scenario}
	def.PersonaIDs = []string{req.PersonaID}
	if err := def.Validate(); err != nil {
		middleware.AbortWithMappedError(c, err)
		return
	}
	if c.GetString(ctxkey.ApiKey) == "" {
		middleware.AbortWithMappedError(c, qamodel.ErrAuth)
		return
	}

	r := newRunner(c)
	event.SetEventStreamHeaders(c.Writer)
	c.Status(http.StatusOK)
	sink := event.NewSink(event.NewSSEWriter(c.Writer), 0)

	ctx := c.Request.Context()
	conv, _, err := r.Converse(ctx, &def, req.Scenario, req.PersonaID, sink)
	_ = sink.Close()

	lg := logger.FromContext(c).With(zap.String("persona_id", req.PersonaID))
	if err != nil {
		lg.Info("test conversation failed", zap.Error(err))
		return
	}
	lg.Debug("test conversation finished", zap.String("status", string(conv.Status)))
}
