// Package event carries the progress feed from the engine to one observer.
//
// A Sink is a single-writer ordered queue: any number of goroutines may call
// Emit, one goroutine writes to the transport, and events leave in the order
// Emit accepted them.
package event

import (
	"context"
	"sync"

	"github.com/Laisky/errors/v2"

	"github.com/qaforge/convotest/qa/model"
)

// Writer puts one event on the wire. A returned error closes the sink.
type Writer interface {
	WriteEvent(e model.Event) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(e model.Event) error

func (f WriterFunc) WriteEvent(e model.Event) error { return f(e) }

// Emitter is what engine components depend on.
type Emitter interface {
	Emit(ctx context.Context, e model.Event) error
}

const defaultBuffer = 64

type Sink struct {
	w  Writer
	ch chan model.Event

	mu      sync.RWMutex
	stopped bool
	stop    chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
	err       error

	done chan struct{}
}

var _ Emitter = (*Sink)(nil)

// NewSink starts the writer goroutine. Call Close to flush and stop it.
func NewSink(w Writer, buffer int) *Sink {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &Sink{
		w:      w,
		ch:     make(chan model.Event, buffer),
		stop:   make(chan struct{}),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Sink) loop() {
	defer close(s.done)
	for {
		select {
		case e := <-s.ch:
			s.write(e)
		case <-s.stop:
			for {
				select {
				case e := <-s.ch:
					s.write(e)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(e model.Event) {
	select {
	case <-s.closed:
		return
	default:
	}
	if err := s.w.WriteEvent(e); err != nil {
		s.fail(errors.Wrapf(err, "write %s event", e.Type))
	}
}

func (s *Sink) fail(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		close(s.closed)
	})
}

// Emit queues e. It returns model.ErrSinkClosed once the observer is gone
// or Close was called, and ctx.Err() if ctx ends while the queue is full.
func (s *Sink) Emit(ctx context.Context, e model.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return model.ErrSinkClosed
	}
	select {
	case <-s.closed:
		return model.ErrSinkClosed
	default:
	}

	select {
	case s.ch <- e:
		return nil
	case <-s.closed:
		return model.ErrSinkClosed
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// Closed is closed when the observer went away. Queued events are dropped from then on.
func (s *Sink) Closed() <-chan struct{} { return s.closed }

// Abort marks the sink closed from outside, e.g. when the request context ends.
func (s *Sink) Abort(reason error) {
	if reason == nil {
		reason = model.ErrSinkClosed
	}
	s.fail(reason)
}

// Close stops accepting events, writes everything already queued and waits
// for the writer goroutine. It returns the first write error, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
	s.mu.Unlock()

	<-s.done
	select {
	case <-s.closed:
		return s.err
	default:
		return nil
	}
}
