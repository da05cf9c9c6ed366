package event

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/gorilla/websocket"

	"github.com/qaforge/convotest/qa/model"
)

// SetEventStreamHeaders prepares w for a server-sent event stream.
func SetEventStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// SSEWriter frames each event as one "data:" record and flushes it immediately.
type SSEWriter struct {
	w io.Writer
}

func NewSSEWriter(w io.Writer) *SSEWriter {
	return &SSEWriter{w: w}
}

func (s *SSEWriter) WriteEvent(e model.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if _, err = s.w.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
		return errors.Wrap(err, "write sse frame")
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

const wsWriteTimeout = 10 * time.Second

// WSWriter sends each event as one websocket text frame.
type WSWriter struct {
	conn *websocket.Conn
}

func NewWSWriter(conn *websocket.Conn) *WSWriter {
	return &WSWriter{conn: conn}
}

func (w *WSWriter) WriteEvent(e model.Event) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return errors.Wrap(err, "set websocket write deadline")
	}
	if err := w.conn.WriteJSON(e); err != nil {
		return errors.Wrap(err, "write websocket frame")
	}
	return nil
}

// JSONLinesWriter writes one JSON document per line, used by the CLI.
type JSONLinesWriter struct {
	enc *json.Encoder
}

func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	return &JSONLinesWriter{enc: json.NewEncoder(w)}
}

func (j *JSONLinesWriter) WriteEvent(e model.Event) error {
	return errors.Wrap(j.enc.Encode(e), "encode event")
}

// MultiWriter fans each event out to every writer, stopping at the first error.
func MultiWriter(writers ...Writer) Writer {
	return WriterFunc(func(e model.Event) error {
		for _, w := range writers {
			if err := w.WriteEvent(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *Recorder) WriteEvent(e model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of what was recorded so far.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}
