// Package qatest holds scripted collaborators for engine tests.
package qatest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/qaforge/convotest/qa/endpoint"
	"github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/planner"
)

// Planner returns the same plan for every scenario and echoes intents back.
type Planner struct {
	Opening   string
	Intents   []string
	PlanErr   error
	ContinueE error

	mu        sync.Mutex
	Scenarios []string
}

func (p *Planner) Plan(_ context.Context, scenario, _ string, _ []model.Message) (planner.Plan, error) {
	p.mu.Lock()
	p.Scenarios = append(p.Scenarios, scenario)
	p.mu.Unlock()
	if p.PlanErr != nil {
		return planner.Plan{}, p.PlanErr
	}
	opening := p.Opening
	if opening == "" {
		opening = "hello about " + scenario
	}
	return planner.Plan{NextUtterance: opening, RemainingPlan: append([]string(nil), p.Intents...)}, nil
}

func (p *Planner) Continue(_ context.Context, _ string, intent string) (string, error) {
	if p.ContinueE != nil {
		return "", p.ContinueE
	}
	return "follow up: " + intent, nil
}

// Judge returns Verdict for every transcript and records the transcript lengths.
type Judge struct {
	Verdict model.Verdict

	mu   sync.Mutex
	Seen []int
}

func (j *Judge) Judge(_ context.Context, transcript []model.Message, _, _ string) model.Verdict {
	j.mu.Lock()
	j.Seen = append(j.Seen, len(transcript))
	j.mu.Unlock()
	return j.Verdict
}

// Caller answers every call with Body unless the request text matches a key
// in Errors. Delay is applied before answering and honours ctx.
type Caller struct {
	Body   string
	Errors map[string]error
	Delay  time.Duration
	// DelayFor overrides Delay per request text when set.
	DelayFor func(text string) time.Duration

	mu    sync.Mutex
	Calls []map[string]any
}

func (c *Caller) CallEndpoint(ctx context.Context, url string, _ map[string]string, body map[string]any) (*endpoint.RawResponse, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, body)
	c.mu.Unlock()

	text, _ := body["message"].(string)
	delay := c.Delay
	if c.DelayFor != nil {
		delay = c.DelayFor(text)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		}
	}
	for key, err := range c.Errors {
		if strings.Contains(text, key) {
			return nil, err
		}
	}
	return &endpoint.RawResponse{StatusCode: 200, Body: []byte(c.Body), LatencyMs: 1}, nil
}

// CallCount is safe to read while calls are in flight.
func (c *Caller) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Emitter records events. After FailAfter accepted events it returns
// model.ErrSinkClosed, mimicking an observer that went away.
type Emitter struct {
	FailAfter int

	mu     sync.Mutex
	events []model.Event
}

func (e *Emitter) Emit(_ context.Context, ev model.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailAfter > 0 && len(e.events) >= e.FailAfter {
		return model.ErrSinkClosed
	}
	e.events = append(e.events, ev)
	return nil
}

func (e *Emitter) Events() []model.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Event(nil), e.events...)
}

// Types lists the event types in emission order.
func (e *Emitter) Types() []model.EventType {
	var out []model.EventType
	for _, ev := range e.Events() {
		out = append(out, ev.Type)
	}
	return out
}
