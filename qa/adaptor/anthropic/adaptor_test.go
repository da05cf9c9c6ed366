package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/convotest/qa/adaptor"
	"github.com/qaforge/convotest/qa/meta"
)

func testMeta(baseURL string) *meta.Meta {
	m := meta.New("sk-test", "claude-test")
	m.BaseURL = baseURL
	m.MaxTokens = 256
	m.CapabilityTimeout = time.Second
	return m
}

func TestNormalizeBaseURL(t *testing.T) {
	require.Equal(t, "https://api.anthropic.com/v1", normalizeBaseURL("https://api.anthropic.com"))
	require.Equal(t, "https://api.anthropic.com/v1", normalizeBaseURL("https://api.anthropic.com/v1/"))
	require.Equal(t, "http://127.0.0.1:9000", normalizeBaseURL("http://127.0.0.1:9000/"))
}

func TestComplete(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		require.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))
		require.Equal(t, apiVersion, r.Header.Get("Anthropic-Version"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))

		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"{\"message\":"},{"type":"text","text":"\"hi\"}"}],
			"usage":{"input_tokens":10,"output_tokens":4}}`))
	}))
	defer srv.Close()

	out, err := New(srv.Client()).Complete(context.Background(), testMeta(srv.URL), adaptor.Request{
		System:   "you are a tester",
		Messages: []adaptor.Message{{Role: adaptor.RoleUser, Content: "start"}},
	})
	require.NoError(t, err)
	require.Equal(t, `{"message":"hi"}`, out)

	require.Equal(t, "claude-test", got.Model)
	require.Equal(t, 256, got.MaxTokens)
	require.Equal(t, "you are a tester", got.System)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "start", got.Messages[0].Content[0].Text)
	require.Nil(t, got.Temperature)
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.Client()).Complete(context.Background(), testMeta(srv.URL), adaptor.Request{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "authentication_error", apiErr.Type)
}

func TestCompleteRequiresKey(t *testing.T) {
	m := testMeta("http://unused")
	m.APIKey = ""
	_, err := New(nil).Complete(context.Background(), m, adaptor.Request{})
	require.Error(t, err)
}

func TestCompleteHonoursTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	m := testMeta(srv.URL)
	m.CapabilityTimeout = 30 * time.Millisecond
	_, err := New(srv.Client()).Complete(context.Background(), m, adaptor.Request{})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
