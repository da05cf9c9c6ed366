package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/qaforge/convotest/common/helper"
	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/qa/model"
)

// maxResponseBodySize caps how much of an endpoint reply is read.
const maxResponseBodySize = 1 << 20

// DefaultTimeout is used when a Caller is built with a non-positive timeout.
const DefaultTimeout = 10 * time.Second

// RawResponse is one endpoint reply. Body is always a JSON document:
// non-JSON replies are wrapped as {"text": "..."}.
type RawResponse struct {
	StatusCode int
	Body       []byte
	LatencyMs  int64
}

// Caller performs single, unretried POSTs against the endpoint under test.
type Caller struct {
	client  *http.Client
	timeout time.Duration
}

// NewCaller returns a Caller bounded by timeout. A nil client uses a fresh
// http.Client without its own timeout, the bound comes from the request context.
func NewCaller(client *http.Client, timeout time.Duration) *Caller {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Caller{client: client, timeout: timeout}
}

// Timeout returns the per-call bound.
func (c *Caller) Timeout() time.Duration { return c.timeout }

// CallEndpoint posts body as JSON to url.
//
// It returns *model.TimeoutError when the bound elapses and
// *model.TransportError for any other failure, including non-2xx replies.
// Cancellation of ctx itself is returned as-is.
func (c *Caller) CallEndpoint(ctx context.Context, url string, headers map[string]string, body map[string]any) (*RawResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &model.TransportError{URL: url, Err: errors.Wrap(err, "marshal request body")}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &model.TransportError{URL: url, Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.classify(ctx, callCtx, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return nil, c.classify(ctx, callCtx, url, err)
	}
	if len(data) > maxResponseBodySize {
		return nil, &model.TransportError{
			URL: url,
			Err: errors.Errorf("response exceeds %d bytes", maxResponseBodySize),
		}
	}
	latency := helper.CalcElapsedTime(start)

	logger.FromContext(ctx).Debug("endpoint replied",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int64("latency_ms", latency),
		zap.Int("body_bytes", len(data)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(data, 256)),
		}
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Body:       normalizeBody(data),
		LatencyMs:  latency,
	}, nil
}

func (c *Caller) classify(parent, callCtx context.Context, url string, err error) error {
	if parent.Err() != nil {
		return errors.Wrap(parent.Err(), "endpoint call cancelled")
	}
	var netErr net.Error
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &model.TimeoutError{URL: url, Timeout: c.timeout.String(), Err: err}
	}
	return &model.TransportError{URL: url, Err: err}
}

// normalizeBody guarantees a JSON document so validation always has something to inspect.
func normalizeBody(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return trimmed
	}

	text := string(data)
	var s string
	if json.Unmarshal(trimmed, &s) == nil {
		text = s
	}
	wrapped, _ := json.Marshal(map[string]string{"text": text})
	return wrapped
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
