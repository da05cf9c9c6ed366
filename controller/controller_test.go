package controller

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/ctxkey"
	"github.com/qaforge/convotest/model"
	qamodel "github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/planner"
	"github.com/qaforge/convotest/qa/qatest"
)

func init() {
	gin.SetMode(gin.TestMode)
	config.EnablePrometheusMetrics = false
}

type caller struct {
	profile string
	org     string
	apiKey  string
}

var member = caller{profile: "profile-1", org: "org-1", apiKey: "test-key"}

// identify stands in for JWTAuth and CapabilityCredential.
func identify(who caller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxkey.ProfileId, who.profile)
		c.Set(ctxkey.OrgId, who.org)
		if who.apiKey != "" {
			c.Set(ctxkey.ApiKey, who.apiKey)
			c.Set(ctxkey.Model, "test-model")
		}
		c.Next()
	}
}

func newRouter(who caller) *gin.Engine {
	r := gin.New()
	r.Use(identify(who))
	r.POST("/api/tools/test-runs", ExecuteTestRun)
	r.GET("/api/tools/test-runs/ws", ExecuteTestRunWS)
	r.GET("/api/tools/test-runs", GetTestRuns)
	r.GET("/api/tools/test-runs/:id", GetTestRun)
	r.POST("/api/tools/test-conversation", TestConversation)
	r.GET("/api/agent-configs", GetAgentConfigs)
	r.POST("/api/agent-configs", CreateAgentConfig)
	r.GET("/api/agent-configs/:id", GetAgentConfig)
	r.PUT("/api/agent-configs/:id", UpdateAgentConfig)
	r.GET("/api/personas", GetPersonas)
	r.POST("/api/personas", CreatePersona)
	r.GET("/api/status", GetStatus)
	return r
}

type fakes struct {
	store   *qatest.Store
	planner *qatest.Planner
	judge   *qatest.Judge
	caller  *qatest.Caller
}

func useFakeEngine(t *testing.T) *fakes {
	t.Helper()
	f := &fakes{
		store:   qatest.NewStore(),
		planner: &qatest.Planner{},
		judge:   &qatest.Judge{Verdict: qamodel.Verdict{IsCorrect: true, Explanation: "fine"}},
		caller:  &qatest.Caller{Body: `{"text":"we open on Monday"}`},
	}
	restore := SetEngine(&Engine{
		Store:      f.store,
		Caller:     f.caller,
		NewPlanner: func(context.Context, string) planner.Planner { return f.planner },
		Judge:      f.judge,
	})
	t.Cleanup(restore)
	return f
}

func testDefinition() *qamodel.TestDefinition {
	return &qamodel.TestDefinition{
		ID:           "agent-1",
		Name:         "support bot",
		EndpointURL:  "http://agent.test/chat",
		InputFormat:  map[string]any{"message": "{{message}}"},
		OutputFormat: map[string]any{"text": "example"},
		Rules:        []qamodel.Rule{{Path: "text", Condition: "not_empty"}},
		Scenarios: []qamodel.Scenario{
			{ID: "s1", Scenario: "opening hours", ExpectedOutput: "mentions Monday"},
			{ID: "s2", Scenario: "refund", ExpectedOutput: "explains refunds"},
		},
		PersonaIDs: []string{"p1", "p2"},
		OrgID:      "org-1",
	}
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// readSSE decodes every "data:" frame of an event stream.
func readSSE(t *testing.T, raw string) []qamodel.Event {
	t.Helper()
	var events []qamodel.Event
	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e qamodel.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		events = append(events, e)
	}
	return events
}

func types(events []qamodel.Event) []qamodel.EventType {
	out := make([]qamodel.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

// setupDB points model.DB at a migrated in-memory SQLite database.
func setupDB(t *testing.T) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, model.MigrateDB(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	original := model.DB
	model.DB = db
	t.Cleanup(func() {
		model.DB = original
		_ = sqlDB.Close()
	})
}
