// Package planner produces the human side of a test conversation.
package planner

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/qa/adaptor"
	"github.com/qaforge/convotest/qa/meta"
	"github.com/qaforge/convotest/qa/model"
)

// Plan is the opening utterance plus the intents of the follow-up turns.
type Plan struct {
	NextUtterance string
	RemainingPlan []string
}

// Planner plans and continues one conversation. Implementations do not retry.
type Planner interface {
	Plan(ctx context.Context, scenario, expected string, transcript []model.Message) (Plan, error)
	Continue(ctx context.Context, lastReply, nextIntent string) (string, error)
}

// LLMPlanner asks the language capability for each utterance.
type LLMPlanner struct {
	capability adaptor.Capability
	meta       *meta.Meta
	system     string
	maxTurns   int
}

var _ Planner = (*LLMPlanner)(nil)

// New builds a planner for one persona. personaPrompt may be empty.
func New(capability adaptor.Capability, m *meta.Meta, personaPrompt string) *LLMPlanner {
	maxTurns := m.MaxPlannedTurns
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &LLMPlanner{
		capability: capability,
		meta:       m,
		system:     SystemPrompt(personaPrompt, maxTurns),
		maxTurns:   maxTurns,
	}
}

type plannerOutput struct {
	Message string   `json:"message"`
	Plan    []string `json:"plan"`
}

func (p *LLMPlanner) complete(ctx context.Context, prompt string) (string, error) {
	out, err := p.capability.Complete(ctx, p.meta, adaptor.Request{
		System:   p.system,
		Messages: []adaptor.Message{{Role: adaptor.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", errors.Wrap(err, "planner capability call")
	}
	return out, nil
}

func (p *LLMPlanner) Plan(ctx context.Context, scenario, expected string, transcript []model.Message) (Plan, error) {
	out, err := p.complete(ctx, openingPrompt(scenario, expected, RenderTranscript(transcript)))
	if err != nil {
		return Plan{}, err
	}

	plan, err := ParsePlan(out, p.maxTurns)
	if err != nil {
		logger.FromContext(ctx).Warn("planner returned unparsable opening",
			zap.String("output", truncate(out, 512)), zap.Error(err))
		return Plan{}, err
	}
	return plan, nil
}

func (p *LLMPlanner) Continue(ctx context.Context, lastReply, nextIntent string) (string, error) {
	out, err := p.complete(ctx, followUpPrompt(lastReply, nextIntent))
	if err != nil {
		return "", err
	}
	return ParseUtterance(out)
}

// ParsePlan reads the opening output. A missing or blank message is
// ErrPlannerParse. The plan is trimmed of blanks and capped at maxTurns.
func ParsePlan(output string, maxTurns int) (Plan, error) {
	var parsed plannerOutput
	if err := adaptor.DecodeJSONObject(output, &parsed); err != nil {
		return Plan{}, errors.Wrapf(model.ErrPlannerParse, "opening: %s", err.Error())
	}
	msg := strings.TrimSpace(parsed.Message)
	if msg == "" {
		return Plan{}, errors.Wrap(model.ErrPlannerParse, "opening has no message")
	}

	remaining := make([]string, 0, len(parsed.Plan))
	for _, intent := range parsed.Plan {
		if intent = strings.TrimSpace(intent); intent != "" {
			remaining = append(remaining, intent)
		}
	}
	if len(remaining) > maxTurns {
		remaining = remaining[:maxTurns]
	}
	return Plan{NextUtterance: msg, RemainingPlan: remaining}, nil
}

// ParseUtterance reads a follow-up output. It accepts the JSON contract or
// plain text; an empty result is ErrPlannerParse.
func ParseUtterance(output string) (string, error) {
	var parsed plannerOutput
	if adaptor.DecodeJSONObject(output, &parsed) == nil {
		if msg := strings.TrimSpace(parsed.Message); msg != "" {
			return msg, nil
		}
		return "", errors.Wrap(model.ErrPlannerParse, "follow-up has no message")
	}

	msg := strings.Trim(strings.TrimSpace(output), `"`)
	if msg == "" {
		return "", errors.Wrap(model.ErrPlannerParse, "empty follow-up")
	}
	return msg, nil
}

// RenderTranscript formats messages as Human/Assistant blocks separated by blank lines.
func RenderTranscript(messages []model.Message) string {
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := "Human"
		if m.Role == model.RoleAssistant {
			speaker = "Assistant"
		}
		blocks = append(blocks, speaker+": "+m.Content)
	}
	return strings.Join(blocks, "\n\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
