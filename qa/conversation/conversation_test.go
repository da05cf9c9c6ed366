package conversation

import (
	"context"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/qatest"
)

func testDefinition() *model.TestDefinition {
	return &model.TestDefinition{
		ID:           "def-1",
		EndpointURL:  "http://agent.test/chat",
		InputFormat:  map[string]any{"message": "{{message}}"},
		OutputFormat: map[string]any{"text": "example"},
		Rules: []model.Rule{
			{ID: "r1", Path: "text", Condition: "contains", Value: "Monday"},
		},
		Scenarios:  []model.Scenario{{ID: "s1", Scenario: "ask about shipping", ExpectedOutput: "mentions a day"}},
		PersonaIDs: []string{"p1"},
	}
}

func newOrchestrator(def *model.TestDefinition, p *qatest.Planner, j *qatest.Judge, c *qatest.Caller, e *qatest.Emitter) *Orchestrator {
	return New(Config{
		Definition: def,
		Scenario:   def.Scenarios[0],
		PersonaID:  "p1",
		ChatID:     "chat-1",
		Planner:    p,
		Judge:      j,
		Caller:     c,
		Emitter:    e,
	})
}

func TestRunPasses(t *testing.T) {
	def := testDefinition()
	pl := &qatest.Planner{Intents: []string{"ask for tracking"}}
	jg := &qatest.Judge{Verdict: model.Verdict{IsCorrect: true, Explanation: "good"}}
	caller := &qatest.Caller{Body: `{"text":"Your order ships Monday"}`}
	em := &qatest.Emitter{}

	o := newOrchestrator(def, pl, jg, caller, em)
	require.Equal(t, StatePlanning, o.State())

	conv, result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StatePassed, o.State())
	assert.Equal(t, model.ChatStatusPassed, conv.Status)
	assert.True(t, result.PassedTest)
	assert.True(t, result.FormatValid)
	assert.True(t, result.ConditionMet)
	assert.Equal(t, 2, caller.CallCount())

	require.Len(t, conv.Messages, 4)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Your order ships Monday", conv.Messages[1].Content)
	assert.Equal(t, "follow up: ask for tracking", conv.Messages[2].Content)
	for _, m := range conv.Messages {
		assert.Equal(t, "chat-1", m.ChatID)
		require.NotNil(t, m.IsCorrect)
		assert.True(t, *m.IsCorrect)
	}
	assert.Equal(t, 1, conv.Metrics.Correct)
	assert.Len(t, conv.Metrics.ResponseTimeMs, 2)
	assert.Equal(t, []int{4}, jg.Seen)

	types := em.Types()
	assert.Equal(t, []model.EventType{model.EventMessage, model.EventMessage, model.EventMessage, model.EventMessage}, types)
}

func TestNegativeVerdictLandsOnFinalMessageOnly(t *testing.T) {
	def := testDefinition()
	pl := &qatest.Planner{Intents: []string{"push back"}}
	jg := &qatest.Judge{Verdict: model.Verdict{IsCorrect: false, Explanation: "never gave a date"}}
	caller := &qatest.Caller{Body: `{"text":"Your order ships Monday"}`}

	conv, result, err := newOrchestrator(def, pl, jg, caller, &qatest.Emitter{}).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.PassedTest)
	assert.True(t, result.FormatValid)
	assert.True(t, result.ConditionMet)
	assert.Equal(t, model.ChatStatusFailed, conv.Status)
	assert.Equal(t, 1, conv.Metrics.Incorrect)

	last := len(conv.Messages) - 1
	for i, m := range conv.Messages {
		require.NotNil(t, m.IsCorrect)
		if i == last {
			assert.False(t, *m.IsCorrect)
			assert.Equal(t, "never gave a date", m.Explanation)
		} else {
			assert.True(t, *m.IsCorrect, "message %d", i)
			assert.Empty(t, m.Explanation)
		}
	}
}

func TestStructuralFailureFailsPair(t *testing.T) {
	def := testDefinition()
	jg := &qatest.Judge{Verdict: model.Verdict{IsCorrect: true, Explanation: "fine"}}
	caller := &qatest.Caller{Body: `{"reply":"no idea"}`}

	conv, result, err := newOrchestrator(def, &qatest.Planner{}, jg, caller, &qatest.Emitter{}).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.FormatValid)
	assert.False(t, result.ConditionMet)
	assert.False(t, result.PassedTest)
	assert.True(t, result.ConversationResult.IsCorrect)
	assert.Contains(t, result.Explanation, "not found")
	assert.Equal(t, model.ChatStatusFailed, conv.Status)
}

func TestTransportFailureAborts(t *testing.T) {
	def := testDefinition()
	pl := &qatest.Planner{Intents: []string{"boom"}}
	caller := &qatest.Caller{
		Body:   `{"text":"Monday"}`,
		Errors: map[string]error{"boom": &model.TimeoutError{URL: def.EndpointURL, Timeout: "10s"}},
	}
	jg := &qatest.Judge{}
	em := &qatest.Emitter{}

	o := newOrchestrator(def, pl, jg, caller, em)
	conv, result, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)

	var timeout *model.TimeoutError
	assert.True(t, errors.As(err, &timeout))
	assert.True(t, model.IsPairError(err))
	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, model.ChatStatusFailed, conv.Status)
	assert.NotEmpty(t, conv.Error)

	// opening exchange plus the failed user turn
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, model.RoleUser, conv.Messages[2].Role)
	assert.Len(t, em.Events(), 3)
	assert.Empty(t, jg.Seen)
}

func TestPlannerFailureAbortsBeforeAnyCall(t *testing.T) {
	def := testDefinition()
	pl := &qatest.Planner{PlanErr: model.ErrPlannerParse}
	caller := &qatest.Caller{Body: `{}`}

	o := newOrchestrator(def, pl, &qatest.Judge{}, caller, &qatest.Emitter{})
	conv, _, err := o.Run(context.Background())
	require.ErrorIs(t, err, model.ErrPlannerParse)
	assert.Equal(t, 0, caller.CallCount())
	assert.Empty(t, conv.Messages)
	assert.Equal(t, model.ChatStatusFailed, conv.Status)
}

func TestRunTwiceIsRejected(t *testing.T) {
	def := testDefinition()
	o := newOrchestrator(def, &qatest.Planner{}, &qatest.Judge{}, &qatest.Caller{Body: `{"text":"Monday"}`}, nil)
	_, _, err := o.Run(context.Background())
	require.NoError(t, err)

	_, _, err = o.Run(context.Background())
	require.ErrorIs(t, err, model.ErrConversationTerminal)
}

func TestRunStreamingEmitsValidationAndComplete(t *testing.T) {
	def := testDefinition()
	em := &qatest.Emitter{}
	jg := &qatest.Judge{Verdict: model.Verdict{IsCorrect: true, Explanation: "ok"}}

	conv, _, err := newOrchestrator(def, &qatest.Planner{}, jg, &qatest.Caller{Body: `{"text":"Monday"}`}, em).
		RunStreaming(context.Background())
	require.NoError(t, err)

	events := em.Events()
	require.Len(t, events, 4)
	assert.Equal(t, model.EventValidation, events[2].Type)
	assert.Equal(t, "chat-1", events[2].ChatID)
	require.NotNil(t, events[2].Result)
	assert.True(t, events[2].Result.PassedTest)
	assert.Equal(t, model.EventComplete, events[3].Type)
	require.NotNil(t, events[3].Conversation)
	assert.Equal(t, conv.ID, events[3].Conversation.ID)
}

func TestClosedSinkStopsConversation(t *testing.T) {
	def := testDefinition()
	pl := &qatest.Planner{Intents: []string{"one", "two"}}
	caller := &qatest.Caller{Body: `{"text":"Monday"}`}
	em := &qatest.Emitter{FailAfter: 1}

	_, _, err := newOrchestrator(def, pl, &qatest.Judge{}, caller, em).Run(context.Background())
	require.ErrorIs(t, err, model.ErrSinkClosed)
	assert.Equal(t, 1, caller.CallCount())
}
