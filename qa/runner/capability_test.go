package runner

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/convotest/qa/adaptor"
	"github.com/qaforge/convotest/qa/judge"
	"github.com/qaforge/convotest/qa/meta"
	"github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/planner"
	"github.com/qaforge/convotest/qa/qatest"
)

type personaPrompts map[string]string

func (p personaPrompts) GetPersonaSystemPrompt(_ context.Context, id string) (string, error) {
	if prompt, ok := p[id]; ok {
		return prompt, nil
	}
	return "", errors.Wrapf(model.ErrConfigNotFound, "persona %s", id)
}

// proseJudgeCapability plans valid conversations but answers every judge
// request with text that is not JSON.
type proseJudgeCapability struct {
	mu      sync.Mutex
	systems []string
	judged  int
}

func (c *proseJudgeCapability) complete(_ context.Context, _ *meta.Meta, req adaptor.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.System == "" {
		c.judged++
		return "The assistant did a reasonable job overall, I would say it passes.", nil
	}
	c.systems = append(c.systems, req.System)
	return `{"message": "I want a refund for order 42", "plan": ["ask how long it takes"]}`, nil
}

func TestDefaultWiringReachesTerminalStateWhenJudgeOutputIsProse(t *testing.T) {
	def := definition([]string{"refund", "shipping"}, []string{"calm", "rushed"})
	f := newFixture(def, &qatest.Caller{Body: `{"text":"refunds take 5 days"}`})
	capability := &proseJudgeCapability{}

	r := New(Options{
		Store:      f.store,
		Meta:       f.meta,
		Capability: adaptor.CapabilityFunc(capability.complete),
		Personas:   personaPrompts{"rushed": "You are in a hurry and type in short bursts."},
		Caller:     f.caller,
	})
	p, err := r.Prepare(context.Background(), "agent-1", "org-1", "profile-1")
	require.NoError(t, err)

	em := &qatest.Emitter{}
	run, err := r.Execute(context.Background(), p, em)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 4, run.Metrics.Chats)
	assert.Equal(t, 0, run.Metrics.Passed)
	assert.Equal(t, 4, run.Metrics.Failed)
	assert.Equal(t, 4, capability.judged)

	var completes int
	for _, e := range em.Events() {
		if e.Type == model.EventChatComplete {
			completes++
			require.NotNil(t, e.Success)
			assert.False(t, *e.Success)
		}
		assert.NotEqual(t, model.EventError, e.Type)
	}
	assert.Equal(t, 4, completes)
	assert.Equal(t, model.EventComplete, em.Types()[len(em.Types())-1])

	for _, chat := range run.Chats {
		require.Len(t, chat.Messages, 4)
		last := chat.Messages[len(chat.Messages)-1]
		require.NotNil(t, last.IsCorrect)
		assert.False(t, *last.IsCorrect)
		assert.Equal(t, judge.FallbackExplanation, last.Explanation)
		assert.Equal(t, "I want a refund for order 42", chat.Messages[0].Content)
	}

	var withPersona int
	for _, system := range capability.systems {
		assert.True(t, strings.HasPrefix(system, planner.DefaultTesterPrompt))
		if strings.Contains(system, "You are in a hurry") {
			withPersona++
		}
	}
	assert.NotZero(t, withPersona)
	assert.Less(t, withPersona, len(capability.systems))
}

func TestUnexpectedPairErrorIsIsolated(t *testing.T) {
	def := definition([]string{"refund", "shipping"}, []string{"p1"})
	boom := errors.New("caller bug")
	require.False(t, model.IsPairError(boom))

	f := newFixture(def, &qatest.Caller{
		Body:   `{"text":"ok"}`,
		Errors: map[string]error{"refund": boom},
	})
	em := &qatest.Emitter{}

	run, err := f.execute(t, context.Background(), em)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Metrics.Chats)
	assert.Equal(t, 1, run.Metrics.Failed)
	assert.Equal(t, 1, run.Metrics.Passed)
	assert.Contains(t, run.Chats[0].Error, "caller bug")

	types := em.Types()
	assert.Contains(t, types, model.EventError)
	assert.Equal(t, model.EventComplete, types[len(types)-1])
}
