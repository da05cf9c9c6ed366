package controller

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qamodel "github.com/qaforge/convotest/qa/model"
)

func conversationBody() map[string]any {
	return map[string]any{
		"definition": map[string]any{
			"endpoint":     "http://agent.test/chat",
			"inputFormat":  map[string]any{"message": "{{message}}"},
			"outputFormat": map[string]any{"text": "example"},
			"rules":        []map[string]any{{"path": "text", "condition": "contains", "value": "Monday"}},
		},
		"scenario":  map[string]any{"scenario": "opening hours", "expectedOutput": "mentions Monday"},
		"personaId": "p1",
	}
}

func TestTestConversationStreamsTranscriptAndVerdict(t *testing.T) {
	f := useFakeEngine(t)
	f.planner.Intents = []string{"ask about weekends"}

	w := doJSON(newRouter(member), http.MethodPost, "/api/tools/test-conversation", conversationBody())
	require.Equal(t, http.StatusOK, w.Code)

	events := readSSE(t, w.Body.String())
	assert.Equal(t, []qamodel.EventType{
		qamodel.EventMessage, qamodel.EventMessage,
		qamodel.EventMessage, qamodel.EventMessage,
		qamodel.EventValidation, qamodel.EventComplete,
	}, types(events))

	validation := events[4]
	require.NotNil(t, validation.Result)
	assert.True(t, validation.Result.PassedTest)

	done := events[5]
	require.NotNil(t, done.Conversation)
	assert.False(t, done.IsRunTerminal())
	assert.Equal(t, qamodel.ChatStatusPassed, done.Conversation.Status)
	assert.Len(t, done.Conversation.Messages, 4)

	assert.Empty(t, f.store.Created)
	assert.Equal(t, 2, f.caller.CallCount())
}

func TestTestConversationEndpointFailure(t *testing.T) {
	f := useFakeEngine(t)
	f.caller.Errors = map[string]error{"opening": &qamodel.TimeoutError{URL: "http://agent.test/chat", Timeout: "10s"}}

	w := doJSON(newRouter(member), http.MethodPost, "/api/tools/test-conversation", conversationBody())
	require.Equal(t, http.StatusOK, w.Code)

	got := types(readSSE(t, w.Body.String()))
	require.NotEmpty(t, got)
	assert.Equal(t, qamodel.EventError, got[len(got)-1])
	assert.NotContains(t, got, qamodel.EventComplete)
}

func TestTestConversationRejectsInvalidInput(t *testing.T) {
	useFakeEngine(t)

	t.Run("missing endpoint", func(t *testing.T) {
		body := conversationBody()
		delete(body["definition"].(map[string]any), "endpoint")
		w := doJSON(newRouter(member), http.MethodPost, "/api/tools/test-conversation", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing persona", func(t *testing.T) {
		body := conversationBody()
		delete(body, "personaId")
		w := doJSON(newRouter(member), http.MethodPost, "/api/tools/test-conversation", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing credential", func(t *testing.T) {
		w := doJSON(newRouter(caller{profile: "profile-1", org: "org-1"}), http.MethodPost,
			"/api/tools/test-conversation", conversationBody())
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
