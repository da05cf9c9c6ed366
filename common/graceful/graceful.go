// Package graceful tracks in-flight requests and background run persistence
// so the server can drain before exiting.
package graceful

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/qaforge/convotest/common/logger"
)

const drainPollInterval = 200 * time.Millisecond

var (
	inFlight atomic.Int64
	draining atomic.Bool
	critical sync.WaitGroup
)

// BeginRequest marks one request as in flight until the returned func runs.
func BeginRequest() func() {
	inFlight.Add(1)
	return func() { inFlight.Add(-1) }
}

func InFlight() int64 { return inFlight.Load() }

// GoCritical runs fn in a goroutine that Drain waits for. Terminal run
// snapshots are written this way after the observer has gone.
func GoCritical(ctx context.Context, name string, fn func(context.Context)) {
	critical.Go(func() {
		start := time.Now()
		fn(ctx)
		logger.Logger.Debug("critical task done",
			zap.String("name", name), zap.Duration("elapsed", time.Since(start)))
	})
}

// Drain blocks until every critical task has returned and no request is in
// flight, or ctx ends.
func Drain(ctx context.Context) error {
	tasksDone := make(chan struct{})
	go func() {
		critical.Wait()
		close(tasksDone)
	}()

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	tasksFinished := false
	for {
		if tasksFinished && inFlight.Load() == 0 {
			logger.Logger.Info("graceful drain complete")
			return nil
		}
		select {
		case <-ctx.Done():
			logger.Logger.Error("graceful drain timeout",
				zap.Bool("critical_tasks_done", tasksFinished),
				zap.Int64("in_flight_requests", inFlight.Load()))
			return ctx.Err()
		case <-tasksDone:
			tasksFinished = true
			tasksDone = nil
		case <-ticker.C:
		}
	}
}

func SetDraining() { draining.Store(true) }

func IsDraining() bool { return draining.Load() }

// GinRequestTracker counts a request as in flight until its handler returns,
// so open event streams hold shutdown. Once draining, new requests get 503.
func GinRequestTracker() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsDraining() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{"message": "server is shutting down", "type": "convotest_error"},
			})
			return
		}
		done := BeginRequest()
		defer done()
		c.Next()
	}
}
