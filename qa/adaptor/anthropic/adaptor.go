package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/qaforge/convotest/common/logger"
	"github.com/qaforge/convotest/monitor"
	"github.com/qaforge/convotest/qa/adaptor"
	"github.com/qaforge/convotest/qa/meta"
)

const (
	anthropicAPIHost = "api.anthropic.com"
	apiVersion       = "2023-06-01"
	maxResponseSize  = 4 << 20
	defaultMaxTokens = 1024
)

// APIError is a non-200 reply from the Messages API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic API status %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

// Adaptor calls the Anthropic Messages API.
type Adaptor struct {
	client *http.Client
}

var _ adaptor.Capability = (*Adaptor)(nil)

func New(client *http.Client) *Adaptor {
	if client == nil {
		client = &http.Client{}
	}
	return &Adaptor{client: client}
}

// normalizeBaseURL appends /v1 to the public Anthropic host. Other hosts
// (proxies, test servers) are used verbatim.
func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.Contains(baseURL, anthropicAPIHost) && !strings.HasSuffix(baseURL, "/v1") {
		return baseURL + "/v1"
	}
	return baseURL
}

// GetRequestURL returns the messages endpoint for m.
func GetRequestURL(m *meta.Meta) string {
	return normalizeBaseURL(m.BaseURL) + "/messages"
}

// ConvertRequest maps the capability request to the wire format.
func ConvertRequest(m *meta.Meta, req adaptor.Request) *Request {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	out := &Request{
		Model:     m.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  make([]Message, 0, len(req.Messages)),
	}
	if req.Temperature > 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, Message{
			Role:    string(msg.Role),
			Content: []ContentBlock{{Type: "text", Text: msg.Content}},
		})
	}
	return out
}

// Complete sends one request and returns the concatenated text blocks.
// The call is bounded by m.CapabilityTimeout when set.
func (a *Adaptor) Complete(ctx context.Context, m *meta.Meta, req adaptor.Request) (string, error) {
	start := time.Now()
	out, err := a.complete(ctx, m, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	monitor.RecordCapabilityRequest(m.Model, status, time.Since(start))
	return out, err
}

func (a *Adaptor) complete(ctx context.Context, m *meta.Meta, req adaptor.Request) (string, error) {
	if m.APIKey == "" {
		return "", errors.New("anthropic api key is empty")
	}
	if m.CapabilityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.CapabilityTimeout)
		defer cancel()
	}

	payload, err := json.Marshal(ConvertRequest(m, req))
	if err != nil {
		return "", errors.Wrap(err, "marshal anthropic request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, GetRequestURL(m), bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "build anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Anthropic-Version", apiVersion)
	httpReq.Header.Set("X-Api-Key", m.APIKey)

	lg := logger.FromContext(ctx)
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "send anthropic request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", errors.Wrap(err, "read anthropic response")
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &APIError{StatusCode: resp.StatusCode, Type: "http_error", Message: string(body)}
		}
		return "", errors.Wrap(err, "decode anthropic response")
	}
	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if parsed.Error != nil {
			apiErr.Type, apiErr.Message = parsed.Error.Type, parsed.Error.Message
		}
		lg.Warn("anthropic request failed", zap.Int("status", resp.StatusCode), zap.String("model", m.Model))
		return "", apiErr
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	lg.Debug("anthropic completion",
		zap.String("model", parsed.Model),
		zap.Int("input_tokens", parsed.Usage.InputTokens),
		zap.Int("output_tokens", parsed.Usage.OutputTokens),
		zap.String("stop_reason", parsed.StopReason))
	return sb.String(), nil
}
