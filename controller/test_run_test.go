package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/convotest/model"
	qamodel "github.com/qaforge/convotest/qa/model"
)

func TestExecuteTestRunStreamsEvents(t *testing.T) {
	f := useFakeEngine(t)
	f.store.Put(testDefinition())

	w := doJSON(newRouter(member), http.MethodPost, "/api/tools/test-runs", map[string]string{"testId": "agent-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := readSSE(t, w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, qamodel.EventRunCreated, events[0].Type)
	assert.Equal(t, "agent-1", events[0].AgentID)
	assert.Equal(t, "profile-1", events[0].CreatedBy)

	last := events[len(events)-1]
	assert.True(t, last.IsRunTerminal())
	assert.Equal(t, "agent-1", last.TestID)

	var completes int
	for _, e := range events {
		if e.Type == qamodel.EventChatComplete {
			completes++
			require.NotNil(t, e.Success)
			assert.True(t, *e.Success)
		}
		assert.NotEqual(t, qamodel.EventError, e.Type)
	}
	assert.Equal(t, 4, completes)

	require.Len(t, f.store.Created, 1)
	require.Equal(t, 1, f.store.UpdateCount())
	stored := f.store.Updated[0]
	assert.Equal(t, qamodel.RunStatusCompleted, stored.Status)
	assert.Equal(t, 4, stored.Metrics.Total)
	assert.Equal(t, 4, stored.Metrics.Passed)
	assert.Len(t, stored.Chats, 4)
}

func TestExecuteTestRunPairErrorKeepsStreaming(t *testing.T) {
	f := useFakeEngine(t)
	f.store.Put(testDefinition())
	f.caller.Errors = map[string]error{"refund": &qamodel.TransportError{URL: "http://agent.test/chat", Err: errors.New("connection refused")}}

	w := doJSON(newRouter(member), http.MethodPost, "/api/tools/test-runs", map[string]string{"testId": "agent-1"})
	require.Equal(t, http.StatusOK, w.Code)

	events := readSSE(t, w.Body.String())
	got := types(events)
	assert.Equal(t, qamodel.EventComplete, got[len(got)-1])

	var errs, completes int
	for _, e := range events {
		switch e.Type {
		case qamodel.EventError:
			errs++
			assert.NotEmpty(t, e.ChatID)
		case qamodel.EventChatComplete:
			completes++
		}
	}
	assert.Equal(t, 2, errs)
	assert.Equal(t, 2, completes)

	stored := f.store.Updated[0]
	assert.Equal(t, 2, stored.Metrics.Passed)
	assert.Equal(t, 2, stored.Metrics.Failed)
}

func TestExecuteTestRunRejectsBeforeStreaming(t *testing.T) {
	cases := []struct {
		name   string
		who    caller
		body   any
		status int
	}{
		{name: "missing test id", who: member, body: map[string]string{}, status: http.StatusBadRequest},
		{name: "unknown test", who: member, body: map[string]string{"testId": "nope"}, status: http.StatusNotFound},
		{name: "other org", who: caller{profile: "profile-2", org: "org-2", apiKey: "k"},
			body: map[string]string{"testId": "agent-1"}, status: http.StatusForbidden},
		{name: "no credential", who: caller{profile: "profile-1", org: "org-1"},
			body: map[string]string{"testId": "agent-1"}, status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := useFakeEngine(t)
			f.store.Put(testDefinition())

			w := doJSON(newRouter(tc.who), http.MethodPost, "/api/tools/test-runs", tc.body)
			assert.Equal(t, tc.status, w.Code)
			assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
			env := decode(t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, "convotest_error", env.Error.Type)
			assert.Empty(t, f.store.Created)
			assert.Zero(t, f.caller.CallCount())
		})
	}
}

func TestExecuteTestRunWithoutPersonasIsBadRequest(t *testing.T) {
	f := useFakeEngine(t)
	def := testDefinition()
	f.store.Put(def)
	f.store.Personas[def.ID] = nil

	w := doJSON(newRouter(member), http.MethodPost, "/api/tools/test-runs", map[string]string{"testId": def.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.store.Created)
}

func TestExecuteTestRunWS(t *testing.T) {
	f := useFakeEngine(t)
	f.store.Put(testDefinition())

	srv := httptest.NewServer(newRouter(member))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/tools/test-runs/ws?testId=agent-1"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var events []qamodel.Event
	for {
		var e qamodel.Event
		require.NoError(t, conn.ReadJSON(&e))
		events = append(events, e)
		if e.IsRunTerminal() {
			break
		}
	}
	assert.Equal(t, qamodel.EventRunCreated, events[0].Type)
	assert.Equal(t, "agent-1", events[len(events)-1].TestID)

	require.Eventually(t, func() bool { return f.store.UpdateCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestExecuteTestRunWSRejectsUnknownTest(t *testing.T) {
	useFakeEngine(t)
	srv := httptest.NewServer(newRouter(member))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/tools/test-runs/ws?testId=missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func seedRun(t *testing.T, id, createdBy, agentID string) {
	t.Helper()
	run := &qamodel.TestRun{
		ID:        id,
		Name:      "nightly",
		Timestamp: time.Now().UTC(),
		Status:    qamodel.RunStatusCompleted,
		Metrics:   qamodel.RunMetrics{Total: 1, Passed: 1, Chats: 1},
		Chats:     []qamodel.Conversation{{ID: "chat-1", Status: qamodel.ChatStatusPassed, Messages: []qamodel.Message{}}},
		Results:   []qamodel.ScenarioResult{{ScenarioID: "s1", ResponseTimeMs: 12}},
		AgentID:   agentID,
		CreatedBy: createdBy,
	}
	require.NoError(t, model.CreateTestRun(context.Background(), run))
}

func TestGetTestRuns(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	require.NoError(t, model.CreateAgentConfig(ctx, &model.AgentConfig{Id: "agent-1", OrgId: "org-1", Endpoint: "http://a"}))
	seedRun(t, "run-1", "profile-1", "agent-1")
	seedRun(t, "run-2", "profile-2", "agent-1")

	r := newRouter(member)

	t.Run("lists own runs", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/tools/test-runs", nil)
		require.Equal(t, http.StatusOK, w.Code)
		env := decode(t, w)
		assert.True(t, env.Success)
		assert.Contains(t, string(env.Data), "run-1")
		assert.NotContains(t, string(env.Data), "run-2")
	})

	t.Run("same org reads another member's run", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/tools/test-runs/run-2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, string(decode(t, w).Data), "chat-1")
	})

	t.Run("other org is forbidden", func(t *testing.T) {
		w := doJSON(newRouter(caller{profile: "profile-3", org: "org-3"}), http.MethodGet, "/api/tools/test-runs/run-1", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing run", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/tools/test-runs/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
