package meta

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/ctxkey"
	"github.com/qaforge/convotest/common/logger"
)

// Meta is the request-scoped configuration threaded through the engine.
// The credential and model are supplied per invocation and never stored
// in process-wide state.
type Meta struct {
	// APIKey authenticates capability calls (planner and judge).
	APIKey string
	// Model is the capability model identifier.
	Model string
	// BaseURL is the capability API base.
	BaseURL string
	// MaxTokens caps each capability completion.
	MaxTokens int

	EndpointTimeout   time.Duration
	CapabilityTimeout time.Duration
	MaxPlannedTurns   int
	Concurrency       int

	// RequestID correlates logs of one run.
	RequestID string
	StartTime time.Time
}

// New builds a Meta for the given credential using the configured defaults.
func New(apiKey, model string) *Meta {
	model = strings.TrimSpace(model)
	if model == "" {
		model = config.DefaultModel
	}
	return &Meta{
		APIKey:            apiKey,
		Model:             model,
		BaseURL:           config.AnthropicBaseURL,
		MaxTokens:         config.CapabilityMaxTokens,
		EndpointTimeout:   config.EndpointTimeout,
		CapabilityTimeout: config.CapabilityTimeout,
		MaxPlannedTurns:   config.MaxPlannedTurns,
		Concurrency:       config.RunConcurrency,
		StartTime:         time.Now(),
	}
}

// GetByContext builds a Meta from the values set by middleware.CapabilityCredential.
func GetByContext(c *gin.Context) *Meta {
	m := New(c.GetString(ctxkey.ApiKey), c.GetString(ctxkey.Model))
	m.RequestID = c.GetString(ctxkey.RequestId)
	return m
}

// Fields returns the log fields that identify this invocation. The credential is never logged.
func (m *Meta) Fields() []zap.Field {
	return []zap.Field{
		zap.String("model", m.Model),
		zap.String("request_id", m.RequestID),
		zap.Duration("endpoint_timeout", m.EndpointTimeout),
	}
}

// PersonaLookup resolves a persona's optional system-prompt override.
// An empty string with a nil error means the persona has no override.
type PersonaLookup interface {
	GetPersonaSystemPrompt(ctx context.Context, personaID string) (string, error)
}

// ResolveSystemPrompt returns the persona override, or fallback when the
// persona has none or the lookup fails. Lookup failures are logged, never returned.
func ResolveSystemPrompt(ctx context.Context, lookup PersonaLookup, personaID, fallback string) string {
	if lookup == nil || personaID == "" {
		return fallback
	}
	prompt, err := lookup.GetPersonaSystemPrompt(ctx, personaID)
	if err != nil {
		logger.FromContext(ctx).Warn("persona lookup failed, planning without persona prompt",
			zap.String("persona_id", personaID), zap.Error(err))
		return fallback
	}
	if strings.TrimSpace(prompt) == "" {
		return fallback
	}
	return prompt
}
