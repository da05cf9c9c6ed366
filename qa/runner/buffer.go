package runner

import (
	"context"
	"sync"

	"github.com/qaforge/convotest/qa/model"
)

// pairBuffer holds the events of one pair until it is its turn to be forwarded.
type pairBuffer struct {
	mu      sync.Mutex
	events  []model.Event
	done    chan struct{}
	skipped bool
}

func newPairBuffer() *pairBuffer {
	return &pairBuffer{done: make(chan struct{})}
}

func (b *pairBuffer) Emit(ctx context.Context, e model.Event) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
	return nil
}
