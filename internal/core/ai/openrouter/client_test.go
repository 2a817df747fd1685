package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"price-discovery/internal/core/ai/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"gen-1","model":"test/model","choices":[{"message":{"role":"assistant","content":"  süt 1 l  "}}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL, Model: "test/model", MaxTokens: 64})
	resp, err := c.Generate(context.Background(), provider.UserPrompt("süt", 0))
	require.NoError(t, err)

	assert.Equal(t, "süt 1 l", resp.Content)
	assert.Equal(t, "test/model", resp.Model)
	assert.Equal(t, 13, resp.Usage.TotalTokens)

	assert.Equal(t, "test/model", got.Model)
	assert.Equal(t, 64, got.MaxTokens, "未指定時使用客戶端預設")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		errMsg string
	}{
		{"api error", http.StatusTooManyRequests, `{"error":{"message":"rate limited","code":429}}`, "rate limited"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`, "empty content"},
		{"invalid json", http.StatusOK, `not json`, "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "m"})
			_, err := c.Generate(context.Background(), provider.UserPrompt("x", 10))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestClient_RespectsContextWhileThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	// 每分鐘一次：第一次立即通過，第二次需要等待
	c := NewClient(Options{BaseURL: srv.URL, Model: "m", RequestsPerMinute: 1})
	_, err := c.Generate(context.Background(), provider.UserPrompt("a", 10))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, provider.UserPrompt("b", 10))
	assert.Error(t, err)
}
