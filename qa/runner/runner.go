// Package runner coordinates a TestRun: every (scenario, persona) pair of a
// definition is driven through a conversation and the outcomes aggregated.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qaforge/convotest/common/config"
	"github.com/qaforge/convotest/common/graceful"
	"github.com/qaforge/convotest/common/helper"
	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/common/random"
	"github.com/qaforge/convotest/qa/adaptor"
	"github.com/qaforge/convotest/qa/conversation"
	"github.com/qaforge/convotest/qa/event"
	"github.com/qaforge/convotest/qa/judge"
	"github.com/qaforge/convotest/qa/meta"
	"github.com/qaforge/convotest/qa/model"
	"github.com/qaforge/convotest/qa/planner"
)

// PlannerFactory builds the planner for one persona.
type PlannerFactory func(ctx context.Context, personaID string) planner.Planner

// Options wires a Runner. Meta is required; Capability is required unless
// both NewPlanner and Judge are given.
type Options struct {
	Store      Store
	Meta       *meta.Meta
	Capability adaptor.Capability
	Personas   meta.PersonaLookup
	Caller     conversation.EndpointCaller

	NewPlanner PlannerFactory
	Judge      judge.Judge
	Observer   Observer
}

// Runner executes test runs for one invocation.
type Runner struct {
	store      Store
	meta       *meta.Meta
	caller     conversation.EndpointCaller
	newPlanner PlannerFactory
	judge      judge.Judge
	observer   Observer
}

func New(opt Options) *Runner {
	r := &Runner{
		store:      opt.Store,
		meta:       opt.Meta,
		caller:     opt.Caller,
		newPlanner: opt.NewPlanner,
		judge:      opt.Judge,
		observer:   opt.Observer,
	}
	if r.newPlanner == nil {
		r.newPlanner = func(ctx context.Context, personaID string) planner.Planner {
			prompt := meta.ResolveSystemPrompt(ctx, opt.Personas, personaID, "")
			return planner.New(opt.Capability, opt.Meta, prompt)
		}
	}
	if r.judge == nil {
		r.judge = judge.New(opt.Capability, opt.Meta)
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	return r
}

// Prepared is a created run ready to execute.
type Prepared struct {
	Definition *model.TestDefinition
	Run        *model.TestRun
}

// Prepare loads and checks the definition and creates the run record. All
// run-level errors surface here, before any event is written.
// An empty orgID skips the tenancy check.
func (r *Runner) Prepare(ctx context.Context, testID, orgID, createdBy string) (*Prepared, error) {
	if r.meta == nil || r.meta.APIKey == "" {
		return nil, model.ErrAuth
	}

	def, err := r.store.GetTestDefinition(ctx, testID)
	if err != nil {
		return nil, errors.Wrapf(err, "get test definition %s", testID)
	}
	if orgID != "" && def.OrgID != orgID {
		return nil, errors.Wrapf(model.ErrAuthorization, "test %s", testID)
	}

	personas, err := r.store.GetPersonaMapping(ctx, testID)
	if err != nil {
		return nil, errors.Wrapf(err, "get persona mapping %s", testID)
	}

	cp := *def
	cp.PersonaIDs = append([]string(nil), personas...)
	if err = cp.Validate(); err != nil {
		return nil, err
	}

	run := &model.TestRun{
		ID:        random.NewID(),
		Name:      cp.Name,
		Timestamp: time.Now().UTC(),
		Status:    model.RunStatusRunning,
		Metrics:   model.RunMetrics{Total: cp.PairCount()},
		Chats:     []model.Conversation{},
		Results:   []model.ScenarioResult{},
		AgentID:   testID,
		CreatedBy: createdBy,
	}
	if err = r.store.CreateRun(ctx, run); err != nil {
		return nil, errors.Wrap(err, "create test run")
	}
	return &Prepared{Definition: &cp, Run: run}, nil
}

type pair struct {
	index    int
	scenario model.Scenario
	persona  string
	chatID   string
}

type outcome struct {
	conv    *model.Conversation
	result  *model.ValidationResult
	err     error
	aborted bool
}

func pairsOf(def *model.TestDefinition) []pair {
	pairs := make([]pair, 0, def.PairCount())
	for _, sc := range def.Scenarios {
		for _, personaID := range def.PersonaIDs {
			pairs = append(pairs, pair{index: len(pairs), scenario: sc, persona: personaID, chatID: random.NewID()})
		}
	}
	return pairs
}

// Execute runs every pair of p and streams progress to em. The run is
// persisted exactly once. When em closes or ctx ends, no new pair starts,
// the in-flight pair is cancelled, the run is stored as failed and the
// returned error explains why; no complete event is written in that case.
func (r *Runner) Execute(ctx context.Context, p *Prepared, em event.Emitter) (*model.TestRun, error) {
	run := p.Run
	lg := logger.FromContext(ctx).With(
		zap.String("run_id", run.ID),
		zap.String("test_id", run.AgentID),
		zap.Int("pairs", run.Metrics.Total))
	if r.meta != nil {
		lg = lg.With(r.meta.Fields()...)
	}
	detached := context.WithoutCancel(ctx)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if c, ok := em.(interface{ Closed() <-chan struct{} }); ok {
		go func() {
			select {
			case <-c.Closed():
				cancel(model.ErrSinkClosed)
			case <-ctx.Done():
			}
		}()
	}

	if err := em.Emit(ctx, model.RunCreatedEvent(run)); err != nil {
		return r.finish(detached, lg, run, em, errors.Wrap(err, "emit run_created"))
	}

	pairs := pairsOf(p.Definition)
	concurrency := 1
	if r.meta != nil && r.meta.Concurrency > 1 {
		concurrency = r.meta.Concurrency
	}

	var abortErr error
	if concurrency == 1 {
		abortErr = r.executeSequential(ctx, p.Definition, pairs, em, run, cancel)
	} else {
		abortErr = r.executeParallel(ctx, p.Definition, pairs, em, run, cancel, concurrency)
	}
	return r.finish(detached, lg, run, em, abortErr)
}

func (r *Runner) executeSequential(ctx context.Context, def *model.TestDefinition, pairs []pair,
	em event.Emitter, run *model.TestRun, cancel context.CancelCauseFunc) error {
	for _, pr := range pairs {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		out := r.runPair(ctx, def, pr, em)
		r.collect(run, pr, out)
		if out.aborted {
			cancel(out.err)
			return out.err
		}
	}
	return context.Cause(ctx)
}

// executeParallel runs up to limit pairs at once. Each pair emits into its
// own buffer; buffers are forwarded in pair order once the pair finishes, so
// the stream never interleaves two pairs.
func (r *Runner) executeParallel(ctx context.Context, def *model.TestDefinition, pairs []pair,
	em event.Emitter, run *model.TestRun, cancel context.CancelCauseFunc, limit int) error {
	buffers := make([]*pairBuffer, len(pairs))
	outcomes := make([]outcome, len(pairs))
	for i := range buffers {
		buffers[i] = newPairBuffer()
	}

	g := new(errgroup.Group)
	g.SetLimit(limit)
	go func() {
		for i := range pairs {
			g.Go(func() error {
				defer close(buffers[i].done)
				if err := context.Cause(ctx); err != nil {
					outcomes[i] = outcome{err: err, aborted: true}
					buffers[i].skipped = true
					return nil
				}
				outcomes[i] = r.runPair(ctx, def, pairs[i], buffers[i])
				return nil
			})
		}
	}()

	var abortErr error
	for i, pr := range pairs {
		<-buffers[i].done
		if abortErr != nil || buffers[i].skipped {
			continue
		}
		for _, e := range buffers[i].events {
			if err := em.Emit(ctx, e); err != nil {
				abortErr = err
				break
			}
		}
		r.collect(run, pr, outcomes[i])
		if abortErr == nil && outcomes[i].aborted {
			abortErr = outcomes[i].err
		}
		if abortErr != nil {
			cancel(abortErr)
		}
	}
	_ = g.Wait()
	if abortErr != nil {
		return abortErr
	}
	return context.Cause(ctx)
}

// runPair drives one conversation and writes its closing chat_complete or
// error event. Panics are recovered into a pair failure.
func (r *Runner) runPair(ctx context.Context, def *model.TestDefinition, pr pair, em event.Emitter) (out outcome) {
	lg := logger.FromContext(ctx).With(
		zap.Int("pair", pr.index),
		zap.String("persona_id", pr.persona),
		zap.String("chat_id", pr.chatID))
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			err := errors.Errorf("pair panicked: %v", rec)
			lg.Error("recovered pair panic", zap.Error(err))
			out = outcome{conv: failedConversation(pr, err), err: err}
			if emitErr := em.Emit(ctx, model.ErrorEvent(pr.persona, pr.chatID, err)); emitErr != nil {
				out.aborted, out.err = true, emitErr
			}
		}
		r.observer.ObservePair(pr.persona, out.result != nil && out.result.PassedTest,
			out.err != nil, helper.CalcElapsedTime(start))
	}()

	orch := conversation.New(conversation.Config{
		Definition: def,
		Scenario:   pr.scenario,
		PersonaID:  pr.persona,
		ChatID:     pr.chatID,
		Planner:    r.newPlanner(ctx, pr.persona),
		Judge:      r.judge,
		Caller:     r.caller,
		Emitter:    em,
	})
	conv, result, err := orch.Run(ctx)
	out = outcome{conv: conv, result: result, err: err}

	if err != nil {
		if isAbort(ctx, err) {
			out.aborted = true
			lg.Info("pair aborted", zap.Error(err))
			return out
		}
		if model.IsPairError(err) {
			lg.Warn("pair failed", zap.Error(err))
		} else {
			lg.Error("pair failed with unexpected error", zap.Error(err))
		}
		if emitErr := em.Emit(ctx, model.ErrorEvent(pr.persona, pr.chatID, err)); emitErr != nil {
			out.aborted, out.err = true, emitErr
		}
		return out
	}

	if emitErr := em.Emit(ctx, model.ChatCompleteEvent(pr.chatID, result.PassedTest)); emitErr != nil {
		out.aborted, out.err = true, emitErr
	}
	return out
}

// Converse drives a single (scenario, persona) conversation outside of a
// TestRun and streams it, including its validation and complete events.
// Nothing is persisted.
func (r *Runner) Converse(ctx context.Context, def *model.TestDefinition, sc model.Scenario,
	personaID string, em event.Emitter) (*model.Conversation, *model.ValidationResult, error) {
	if r.meta == nil || r.meta.APIKey == "" {
		return nil, nil, model.ErrAuth
	}
	orch := conversation.New(conversation.Config{
		Definition: def,
		Scenario:   sc,
		PersonaID:  personaID,
		Planner:    r.newPlanner(ctx, personaID),
		Judge:      r.judge,
		Caller:     r.caller,
		Emitter:    em,
	})
	conv, result, err := orch.RunStreaming(ctx)
	if err != nil && !isAbort(ctx, err) {
		_ = em.Emit(ctx, model.ErrorEvent(personaID, orch.ChatID(), err))
	}
	return conv, result, err
}

func isAbort(ctx context.Context, err error) bool {
	return errors.Is(err, model.ErrSinkClosed) ||
		errors.Is(err, context.Canceled) ||
		ctx.Err() != nil
}

// collect folds one outcome into the run. It is only called from the
// coordinating goroutine.
func (r *Runner) collect(run *model.TestRun, pr pair, out outcome) {
	conv := out.conv
	if conv == nil {
		conv = failedConversation(pr, out.err)
	}
	run.Chats = append(run.Chats, *conv)
	if out.err == nil && out.result != nil {
		run.Results = append(run.Results, model.ScenarioResult{
			ScenarioID:     pr.scenario.ID,
			ResponseTimeMs: out.result.Metrics.ResponseTimeMs,
		})
	}
}

func failedConversation(pr pair, err error) *model.Conversation {
	msg := "Unknown error occurred"
	if err != nil {
		msg = err.Error()
	}
	return &model.Conversation{
		ID:             pr.chatID,
		Name:           pr.scenario.Scenario,
		Scenario:       pr.scenario.Scenario,
		ExpectedOutput: pr.scenario.ExpectedOutput,
		Status:         model.ChatStatusFailed,
		Messages:       []model.Message{},
		Metrics:        model.ChatMetrics{ResponseTimeMs: []int64{}},
		PersonaID:      pr.persona,
		Timestamp:      time.Now().UTC(),
		Error:          msg,
	}
}

// finish tallies and persists the run once, then writes the terminal event
// unless the run was aborted.
func (r *Runner) finish(ctx context.Context, lg glog.Logger, run *model.TestRun,
	em event.Emitter, abortErr error) (*model.TestRun, error) {
	run.Tally()
	run.Status = model.RunStatusCompleted
	if abortErr != nil {
		run.Status = model.RunStatusFailed
	}

	persistErr := r.persist(ctx, run)
	r.observer.ObserveRun(run.Status, run.Metrics.Total)

	if abortErr != nil {
		lg.Warn("test run aborted",
			zap.Int("chats", run.Metrics.Chats),
			zap.Error(abortErr))
		if persistErr != nil {
			lg.Error("persist aborted run", zap.Error(persistErr))
		}
		return run, abortErr
	}
	if persistErr != nil {
		lg.Error("persist test run", zap.Error(persistErr))
		_ = em.Emit(ctx, model.ErrorEvent("", "", errors.New("failed to save test run")))
		return run, persistErr
	}

	lg.Info("test run completed",
		zap.Int("passed", run.Metrics.Passed),
		zap.Int("failed", run.Metrics.Failed))
	if err := em.Emit(ctx, model.RunCompleteEvent(run.AgentID)); err != nil {
		return run, errors.Wrap(err, "emit complete")
	}
	return run, nil
}

// persist stores the final snapshot under a tracked task so shutdown waits
// for it even when the observer has gone.
func (r *Runner) persist(ctx context.Context, run *model.TestRun) error {
	done := make(chan error, 1)
	snapshot := *run
	graceful.GoCritical(ctx, fmt.Sprintf("persist-run-%s", run.ID), func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, config.ShutdownTimeout)
		defer cancel()
		done <- r.store.UpdateRun(ctx, &snapshot)
	})
	return <-done
}
