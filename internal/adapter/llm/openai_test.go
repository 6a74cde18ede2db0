package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o",
"choices":[{"index":0,"message":{"role":"assistant","content":"  The answer.  "},"finish_reason":"stop"}]}`

func newCompleter(t *testing.T, url string, retries int, timeout time.Duration) *OpenAICompleter {
	t.Helper()
	t.Setenv("TEST_LLM_KEY", "test-key")
	c, err := NewOpenAICompleter("TEST_LLM_KEY", "gpt-4o", Options{
		BaseURL:        url,
		Timeout:        timeout,
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestOpenAICompleter_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Temperature float64 `json:"temperature"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "sys", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "usr", req.Messages[1].Content)
		assert.InDelta(t, 0.2, req.Temperature, 1e-6)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newCompleter(t, srv.URL, 0, time.Second)
	text, err := c.Complete(context.Background(), "sys", "usr", 0.2)
	require.NoError(t, err)
	assert.Equal(t, "The answer.", text)
	assert.Equal(t, "gpt-4o", c.ModelName())
}

func TestOpenAICompleter_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newCompleter(t, srv.URL, 2, time.Second)
	text, err := c.Complete(context.Background(), "sys", "usr", 0.5)
	require.NoError(t, err)
	assert.Equal(t, "The answer.", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAICompleter_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := newCompleter(t, srv.URL, 1, time.Second)
	_, err := c.Complete(context.Background(), "sys", "usr", 0.5)
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAICompleter_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := newCompleter(t, srv.URL, 3, time.Second)
	_, err := c.Complete(context.Background(), "sys", "usr", 0.5)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAICompleter_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newCompleter(t, srv.URL, 0, 50*time.Millisecond)
	start := time.Now()
	_, err := c.Complete(context.Background(), "sys", "usr", 0.5)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOpenAICompleter_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c := newCompleter(t, srv.URL, 2, time.Second)
	_, err := c.Complete(context.Background(), "sys", "usr", 0.5)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestRequestTemperature(t *testing.T) {
	assert.Greater(t, requestTemperature(0), float32(0))
	assert.Equal(t, float32(0.7), requestTemperature(0.7))
}

func TestNewOpenAICompleter_MissingKey(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "")
	_, err := NewOpenAICompleter("TEST_LLM_KEY", "gpt-4o", Options{})
	assert.Error(t, err)
}
