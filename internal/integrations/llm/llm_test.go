package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sriramcse31/ai-test-triage-agent/internal/config"
)

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  error
	}{
		{config.ProviderOllama, nil},
		{config.ProviderAnthropic, nil},
		{config.ProviderOpenAI, nil},
		{config.ProviderNone, ErrDisabled},
	}
	for _, tt := range tests {
		cfg := config.Config{LLMProvider: tt.provider, LLMModel: "m", LLMTimeoutSeconds: 5}
		c, err := New(cfg)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("New(%s) error = %v, want %v", tt.provider, err, tt.wantErr)
		}
		if tt.wantErr == nil && c == nil {
			t.Fatalf("New(%s) returned nil completer", tt.provider)
		}
	}
	if _, err := New(config.Config{LLMProvider: "gemini"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestOllamaComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "llama3.2:3b" || req.Stream {
			t.Fatalf("unexpected request: %+v", req)
		}
		if req.Options.Temperature != 0.1 || req.Options.NumPredict != 2000 {
			t.Fatalf("unexpected options: %+v", req.Options)
		}
		if !strings.Contains(req.Prompt, "CURRENT FAILURE") {
			t.Fatalf("prompt not forwarded: %q", req.Prompt)
		}
		_, _ = io.WriteString(w, `{"model":"llama3.2:3b","response":"The dashboard was hidden.","done":true,"prompt_eval_count":42,"eval_count":7}`)
	}))
	defer server.Close()

	c := NewOllama(Settings{Model: "llama3.2:3b", BaseURL: server.URL, Temperature: 0.1, MaxTokens: 2000, HTTPClient: server.Client()})
	got, err := c.Complete(context.Background(), "CURRENT FAILURE: x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "The dashboard was hidden." {
		t.Fatalf("Complete = %q", got)
	}
}

func TestOllamaCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model 'llama3.2:3b' not found"}`)
	}))
	defer server.Close()

	c := NewOllama(Settings{Model: "llama3.2:3b", BaseURL: server.URL, HTTPClient: server.Client()})
	if _, err := c.Complete(context.Background(), "p"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "prompt text" {
			t.Fatalf("unexpected messages: %+v", req.Messages)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"Selector changed."}}],"usage":{"prompt_tokens":10,"completion_tokens":3}}`)
	}))
	defer server.Close()

	c := NewOpenAI(Settings{Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: server.URL, HTTPClient: server.Client()})
	got, err := c.Complete(context.Background(), "prompt text")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Selector changed." {
		t.Fatalf("Complete = %q", got)
	}
}

func TestOpenAICompleteErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer server.Close()

	c := NewOpenAI(Settings{Model: "gpt-4o-mini", BaseURL: server.URL, HTTPClient: server.Client()})
	if _, err := c.Complete(context.Background(), "p"); err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "sk-ant-test" {
			t.Fatalf("unexpected api key header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "Network instability in CI."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 6}
		}`)
	}))
	defer server.Close()

	c := NewAnthropic(Settings{Model: "claude-3-5-haiku-latest", APIKey: "sk-ant-test", BaseURL: server.URL, MaxTokens: 256, HTTPClient: server.Client()})
	got, err := c.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Network instability in CI." {
		t.Fatalf("Complete = %q", got)
	}
}

type stubCompleter struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
		return "ok", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestWithTimeoutCancelsSlowCalls(t *testing.T) {
	c := WithTimeout(&stubCompleter{delay: time.Second}, 20*time.Millisecond)
	_, err := c.Complete(context.Background(), "p")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	fast := WithTimeout(&stubCompleter{}, time.Second)
	if got, err := fast.Complete(context.Background(), "p"); err != nil || got != "ok" {
		t.Fatalf("fast call = %q, %v", got, err)
	}
}

func TestWithRateLimitHonoursContext(t *testing.T) {
	stub := &stubCompleter{}
	c := WithRateLimit(stub, 0.001, 1)
	if _, err := c.Complete(context.Background(), "p"); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, "p"); err == nil {
		t.Fatal("expected rate-limited call to fail once the context expires")
	}
	if n := stub.calls.Load(); n != 1 {
		t.Fatalf("stub called %d times, want 1", n)
	}
}
