// Package judge decides whether a whole conversation met the expected behaviour.
package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/qa/adaptor"
	"github.com/qaforge/convotest/qa/meta"
	"github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/planner"
)

// FallbackExplanation is returned whenever no verdict could be read.
const FallbackExplanation = "validation failed"

// Judge always reaches a verdict; failures degrade to Fallback().
type Judge interface {
	Judge(ctx context.Context, transcript []model.Message, scenario, expected string) model.Verdict
}

// Fallback is the safe default verdict.
func Fallback() model.Verdict {
	return model.Verdict{IsCorrect: false, Explanation: FallbackExplanation}
}

// LLMJudge evaluates the transcript with a single capability call.
type LLMJudge struct {
	capability adaptor.Capability
	meta       *meta.Meta
}

var _ Judge = (*LLMJudge)(nil)

func New(capability adaptor.Capability, m *meta.Meta) *LLMJudge {
	return &LLMJudge{capability: capability, meta: m}
}

func buildPrompt(transcript, scenario, expected string) string {
	return fmt.Sprintf(`Evaluate if this complete conversation fulfills the test scenario:
Test Scenario: %s
Expected Behavior: %s
Complete Conversation:
%s
Evaluate if the conversation achieved the expected behavior. Consider the entire context.
Return JSON: { "isCorrect": boolean, "explanation": "why" }`, scenario, expected, transcript)
}

func (j *LLMJudge) Judge(ctx context.Context, transcript []model.Message, scenario, expected string) model.Verdict {
	lg := logger.FromContext(ctx)

	out, err := j.capability.Complete(ctx, j.meta, adaptor.Request{
		Messages: []adaptor.Message{{
			Role:    adaptor.RoleUser,
			Content: buildPrompt(planner.RenderTranscript(transcript), scenario, expected),
		}},
	})
	if err != nil {
		lg.Warn("judge capability call failed, using fallback verdict", zap.Error(err))
		return Fallback()
	}

	verdict, err := ParseVerdict(out)
	if err != nil {
		lg.Warn("judge output unparsable, using fallback verdict",
			zap.String("output", out), zap.Error(err))
		return Fallback()
	}
	return verdict
}

type verdictOutput struct {
	IsCorrect   *bool  `json:"isCorrect"`
	Explanation string `json:"explanation"`
}

// ParseVerdict reads {"isCorrect": bool, "explanation": string} from the
// judge output. A missing isCorrect is ErrJudgeParse.
func ParseVerdict(output string) (model.Verdict, error) {
	var parsed verdictOutput
	if err := adaptor.DecodeJSONObject(output, &parsed); err != nil {
		return model.Verdict{}, errors.Wrapf(model.ErrJudgeParse, "%s", err.Error())
	}
	if parsed.IsCorrect == nil {
		return model.Verdict{}, errors.Wrap(model.ErrJudgeParse, "isCorrect missing")
	}
	return model.Verdict{
		IsCorrect:   *parsed.IsCorrect,
		Explanation: strings.TrimSpace(parsed.Explanation),
	}, nil
}
