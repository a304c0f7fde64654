package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tweetsmith/internal/config"
	"tweetsmith/internal/model"
)

func testConfig(url string) config.LLMConfig {
	return config.LLMConfig{
		Provider:   "openai",
		Model:      "gpt-test",
		APIKey:     "test-key",
		APIURL:     url,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}
}

func TestOpenAIComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		require.Equal(t, "system", req.Messages[0].Role)
		require.Equal(t, "write a joke", req.Messages[1].Content)
		require.Equal(t, 150, req.MaxTokens)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Why did the bit flip? Nerves."}}]}`))
	}))
	defer ts.Close()

	p, err := NewProvider(testConfig(ts.URL))
	require.NoError(t, err)
	out, err := p.Complete(context.Background(), Request{System: "sys", Prompt: "write a joke", Temperature: 0.9, MaxTokens: 150})
	require.NoError(t, err)
	require.Equal(t, "Why did the bit flip? Nerves.", out)
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer ts.Close()

	out, err := NewOpenAIProvider(testConfig(ts.URL)).Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestOpenAIErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		target error
	}{
		{http.StatusUnauthorized, model.ErrAuth},
		{http.StatusTooManyRequests, model.ErrTransient},
		{http.StatusServiceUnavailable, model.ErrTransient},
	}
	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))
		cfg := testConfig(ts.URL)
		cfg.MaxRetries = 0
		_, err := NewOpenAIProvider(cfg).Complete(context.Background(), Request{Prompt: "p"})
		ts.Close()
		require.ErrorIs(t, err, tc.target, "status %d", tc.status)
	}
}

func TestAnthropicComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		require.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "sys", req.System)
		require.Equal(t, defaultAnthropicMaxTokens, req.MaxTokens)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Roots hold "},{"type":"text","text":"what storms test."}]}`))
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Provider = "anthropic"
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	out, err := p.Complete(context.Background(), Request{System: "sys", Prompt: "p"})
	require.NoError(t, err)
	require.Equal(t, "Roots hold what storms test.", out)
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(config.LLMConfig{Provider: "eliza"})
	require.Error(t, err)
}
