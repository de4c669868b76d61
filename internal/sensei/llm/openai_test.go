package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	return g
}

func TestOpenAIGateway_SendsConversationInOrder(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	g := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"test-model","choices":[{"index":0,"message":{"role":"assistant","content":"Overfitting is memorising noise."},"finish_reason":"stop"}]}`))
	})

	out, err := g.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "be a tutor"},
			{Role: RoleUser, Content: "What is overfitting?"},
		},
		MaxTokens:   2000,
		Temperature: 0.5,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Overfitting is memorising noise." {
		t.Errorf("unexpected reply %q", out)
	}
	if got.Model != "test-model" || got.MaxTokens != 2000 || got.Temperature != 0.5 {
		t.Errorf("unexpected generation params: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAIGateway_ZeroTemperatureIsSent(t *testing.T) {
	var got map[string]any
	g := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"test-model","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	})

	_, err := g.Complete(context.Background(), Request{
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		Temperature: 0,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	temp, ok := got["temperature"].(float64)
	if !ok {
		t.Fatalf("temperature missing from request: %v", got)
	}
	if temp <= 0 || temp > 1e-30 {
		t.Errorf("temperature: got %v, want a tiny positive value", temp)
	}
}

func TestOpenAIGateway_RateLimit(t *testing.T) {
	g := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
	})
	_, err := g.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !errors.Is(err, ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
}

func TestOpenAIGateway_EmptyContent(t *testing.T) {
	g := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  "},"finish_reason":"length"}]}`))
	})
	_, err := g.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestOpenAIGateway_ServerError(t *testing.T) {
	g := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})
	_, err := g.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err == nil || errors.Is(err, ErrRateLimit) {
		t.Fatalf("expected a plain gateway error, got %v", err)
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	if _, err := NewOpenAI(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
