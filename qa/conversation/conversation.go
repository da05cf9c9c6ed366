// Package conversation drives one (scenario, persona) test conversation
// through Planning, Exchanging and Validating to Passed or Failed.
package conversation

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/qaforge/convotest/common/helper"
	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/common/random"
	"github.com/qaforge/convotest/qa/endpoint"
	"github.com/qaforge/convotest/qa/event"
	"github.com/qaforge/convotest/qa/judge"
	"github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/planner"
	"github.com/qaforge/convotest/qa/validator"
)

type State string

const (
	StatePlanning   State = "planning"
	StateExchanging State = "exchanging"
	StateValidating State = "validating"
	StatePassed     State = "passed"
	StateFailed     State = "failed"
)

// EndpointCaller is satisfied by *endpoint.Caller.
type EndpointCaller interface {
	CallEndpoint(ctx context.Context, url string, headers map[string]string, body map[string]any) (*endpoint.RawResponse, error)
}

// Config wires one orchestrator. Definition is shared and must not be modified.
type Config struct {
	Definition *model.TestDefinition
	Scenario   model.Scenario
	PersonaID  string
	// ChatID is generated when empty.
	ChatID string

	Planner planner.Planner
	Judge   judge.Judge
	Caller  EndpointCaller
	Emitter event.Emitter
}

// Orchestrator owns a single Conversation. It is not safe for concurrent use.
type Orchestrator struct {
	cfg   Config
	state State
	conv  model.Conversation

	lastRaw      []byte
	totalLatency int64
}

func New(cfg Config) *Orchestrator {
	if cfg.ChatID == "" {
		cfg.ChatID = random.NewID()
	}
	return &Orchestrator{
		cfg:   cfg,
		state: StatePlanning,
		conv: model.Conversation{
			ID:             cfg.ChatID,
			Name:           cfg.Scenario.Scenario,
			Scenario:       cfg.Scenario.Scenario,
			ExpectedOutput: cfg.Scenario.ExpectedOutput,
			Status:         model.ChatStatusRunning,
			Messages:       []model.Message{},
			Metrics:        model.ChatMetrics{ResponseTimeMs: []int64{}},
			PersonaID:      cfg.PersonaID,
			Timestamp:      time.Now().UTC(),
		},
	}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// ChatID returns the id of the conversation being driven.
func (o *Orchestrator) ChatID() string { return o.conv.ID }

// Run drives the conversation to a terminal state and emits a message event
// for every appended Message. On failure the partial conversation is
// returned, marked failed, together with the error.
func (o *Orchestrator) Run(ctx context.Context) (*model.Conversation, *model.ValidationResult, error) {
	return o.run(ctx)
}

// RunStreaming is Run plus a validation event and a per-conversation complete event.
func (o *Orchestrator) RunStreaming(ctx context.Context) (*model.Conversation, *model.ValidationResult, error) {
	conv, result, err := o.run(ctx)
	if err != nil {
		return conv, result, err
	}
	if err = o.emit(ctx, model.ValidationEvent(o.cfg.PersonaID, conv.ID, *result)); err != nil {
		return conv, result, err
	}
	if err = o.emit(ctx, model.ConversationCompleteEvent(*conv)); err != nil {
		return conv, result, err
	}
	return conv, result, nil
}

func (o *Orchestrator) run(ctx context.Context) (*model.Conversation, *model.ValidationResult, error) {
	if o.state != StatePlanning {
		return o.snapshot(), nil, model.ErrConversationTerminal
	}
	lg := logger.FromContext(ctx).With(
		zap.String("chat_id", o.conv.ID),
		zap.String("persona_id", o.cfg.PersonaID))

	plan, err := o.cfg.Planner.Plan(ctx, o.cfg.Scenario.Scenario, o.cfg.Scenario.ExpectedOutput, nil)
	if err != nil {
		return o.fail(lg, errors.Wrap(err, "plan conversation"))
	}

	o.state = StateExchanging
	reply, err := o.exchange(ctx, plan.NextUtterance)
	if err != nil {
		return o.fail(lg, errors.Wrap(err, "opening turn"))
	}

	for i, intent := range plan.RemainingPlan {
		utterance, err := o.cfg.Planner.Continue(ctx, reply, intent)
		if err != nil {
			return o.fail(lg, errors.Wrapf(err, "plan turn %d", i+1))
		}
		if reply, err = o.exchange(ctx, utterance); err != nil {
			return o.fail(lg, errors.Wrapf(err, "turn %d", i+1))
		}
	}

	if err := ctx.Err(); err != nil {
		return o.fail(lg, errors.WithStack(err))
	}

	o.state = StateValidating
	result := o.validate(ctx)

	status := model.ChatStatusFailed
	o.state = StateFailed
	if result.PassedTest {
		status = model.ChatStatusPassed
		o.state = StatePassed
	}
	o.conv.ValidationResult = &result
	if err := o.conv.Finish(status, ""); err != nil {
		return o.snapshot(), &result, err
	}

	lg.Debug("conversation finished",
		zap.String("status", string(status)),
		zap.Bool("format_valid", result.FormatValid),
		zap.Bool("condition_met", result.ConditionMet),
		zap.Bool("judge_correct", result.ConversationResult.IsCorrect))
	return o.snapshot(), &result, nil
}

// exchange performs one turn and returns the extracted reply text.
func (o *Orchestrator) exchange(ctx context.Context, utterance string) (string, error) {
	def := o.cfg.Definition
	body := endpoint.FormatInput(utterance, def.InputFormat)

	start := time.Now()
	raw, callErr := o.cfg.Caller.CallEndpoint(ctx, def.EndpointURL, def.Headers, body)
	latency := helper.CalcElapsedTime(start)

	if err := o.appendAndEmit(ctx, model.RoleUser, utterance, latency); err != nil {
		return "", err
	}
	if callErr != nil {
		return "", callErr
	}

	reply := endpoint.ExtractReplyText(raw.Body, def.Rules)
	o.lastRaw = raw.Body
	o.totalLatency += latency
	o.conv.Metrics.ResponseTimeMs = append(o.conv.Metrics.ResponseTimeMs, latency)

	if err := o.appendAndEmit(ctx, model.RoleAssistant, reply, latency); err != nil {
		return "", err
	}
	return reply, nil
}

func (o *Orchestrator) appendAndEmit(ctx context.Context, role model.Role, content string, latency int64) error {
	msg := model.Message{
		ID:      random.NewID(),
		Role:    role,
		Content: content,
		Metrics: model.MessageMetrics{ResponseTimeMs: latency},
	}
	if err := o.conv.Append(msg); err != nil {
		return err
	}
	return o.emit(ctx, model.MessageEvent(o.cfg.PersonaID, o.conv.Messages[len(o.conv.Messages)-1]))
}

func (o *Orchestrator) emit(ctx context.Context, e model.Event) error {
	if o.cfg.Emitter == nil {
		return nil
	}
	return o.cfg.Emitter.Emit(ctx, e)
}

// validate checks the last raw response and judges the whole transcript.
// Only the final message carries the verdict; earlier ones are marked correct.
func (o *Orchestrator) validate(ctx context.Context) model.ValidationResult {
	def := o.cfg.Definition
	report := validator.Validate(o.lastRaw, def.OutputFormat, def.Rules)
	verdict := o.cfg.Judge.Judge(ctx, o.conv.Messages, o.cfg.Scenario.Scenario, o.cfg.Scenario.ExpectedOutput)

	last := len(o.conv.Messages) - 1
	for i := range o.conv.Messages {
		correct := true
		if i == last {
			correct = verdict.IsCorrect
			o.conv.Messages[i].Explanation = verdict.Explanation
		}
		o.conv.Messages[i].IsCorrect = &correct
	}
	if verdict.IsCorrect {
		o.conv.Metrics.Correct++
	} else {
		o.conv.Metrics.Incorrect++
	}

	explanation := verdict.Explanation
	if detail := report.Explain(); detail != "" {
		explanation += " | " + detail
	}

	return model.ValidationResult{
		PassedTest:         report.FormatValid && report.ConditionMet && verdict.IsCorrect,
		FormatValid:        report.FormatValid,
		ConditionMet:       report.ConditionMet,
		Explanation:        explanation,
		ConversationResult: verdict,
		Metrics:            model.ValidationMetrics{ResponseTimeMs: o.totalLatency},
	}
}

func (o *Orchestrator) fail(lg glog.Logger, err error) (*model.Conversation, *model.ValidationResult, error) {
	o.state = StateFailed
	_ = o.conv.Finish(model.ChatStatusFailed, err.Error())
	lg.Warn("conversation aborted", zap.Error(err))
	return o.snapshot(), nil, err
}

// snapshot returns a copy the caller may keep after the orchestrator is gone.
func (o *Orchestrator) snapshot() *model.Conversation {
	c := o.conv
	c.Messages = append([]model.Message(nil), o.conv.Messages...)
	c.Metrics.ResponseTimeMs = append([]int64{}, o.conv.Metrics.ResponseTimeMs...)
	return &c
}
