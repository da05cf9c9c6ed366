package controller

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/model"
	"github.com/qaforge/convotest/monitor"
	"github.com/qaforge/convotest/qa/adaptor"
	"github.com/qaforge/convotest/qa/adaptor/anthropic"
	"github.com/qaforge/convotest/qa/conversation"
	"github.com/qaforge/convotest/qa/endpoint"
	"github.com/qaforge/convotest/qa/judge"
	"github.com/qaforge/convotest/qa/meta"
	"github.com/qaforge/convotest/qa/runner"
)

// Engine holds the collaborators every run handler builds its runner from.
type Engine struct {
	Store      runner.Store
	Personas   meta.PersonaLookup
	Capability adaptor.Capability
	Caller     conversation.EndpointCaller

	// NewPlanner and Judge override the capability-backed defaults.
	NewPlanner runner.PlannerFactory
	Judge      judge.Judge
}

var (
	engineMu sync.RWMutex
	engine   *Engine
)

// DefaultEngine wires the database store, the Anthropic capability and the
// HTTP endpoint caller.
func DefaultEngine() *Engine {
	store := model.NewStore()
	return &Engine{
		Store:      store,
		Personas:   store,
		Capability: anthropic.New(&http.Client{}),
		Caller:     endpoint.NewCaller(&http.Client{}, config.EndpointTimeout),
	}
}

// SetEngine replaces the process engine and returns a function restoring the previous one.
func SetEngine(e *Engine) (restore func()) {
	engineMu.Lock()
	prev := engine
	engine = e
	engineMu.Unlock()
	return func() {
		engineMu.Lock()
		engine = prev
		engineMu.Unlock()
	}
}

func currentEngine() *Engine {
	engineMu.RLock()
	e := engine
	engineMu.RUnlock()
	if e != nil {
		return e
	}

	engineMu.Lock()
	defer engineMu.Unlock()
	if engine == nil {
		engine = DefaultEngine()
	}
	return engine
}

// newRunner builds the per-request runner from the caller's credential.
func newRunner(c *gin.Context) *runner.Runner {
	e := currentEngine()
	var observer runner.Observer
	if config.EnablePrometheusMetrics {
		observer = monitor.RunObserver{}
	}
	return runner.New(runner.Options{
		Store:      e.Store,
		Meta:       meta.GetByContext(c),
		Capability: e.Capability,
		Personas:   e.Personas,
		Caller:     e.Caller,
		NewPlanner: e.NewPlanner,
		Judge:      e.Judge,
		Observer:   observer,
	})
}

const (
	defaultItemsPerPage = 10
	maxItemsPerPage     = 100
)

// pagination reads the p and size query parameters and returns offset and limit.
func pagination(c *gin.Context) (offset, limit int) {
	p, _ := strconv.Atoi(c.Query("p"))
	if p < 0 {
		p = 0
	}
	size, _ := strconv.Atoi(c.Query("size"))
	if size <= 0 {
		size = defaultItemsPerPage
	}
	if size > maxItemsPerPage {
		size = maxItemsPerPage
	}
	return p * size, size
}
