package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicGateway_LiftsSystemPrompt(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[{"type":"text","text":"Tell me what you know first."}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":6}}`))
	}))
	defer srv.Close()

	g, err := NewAnthropic(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "claude-test"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	out, err := g.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "be a tutor"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "explain dropout"},
		},
		MaxTokens:   256,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Tell me what you know first." {
		t.Errorf("unexpected reply %q", out)
	}
	if len(got.System) != 1 || got.System[0].Text != "be a tutor" {
		t.Errorf("system prompt not lifted: %+v", got.System)
	}
	if len(got.Messages) != 3 || got.Messages[0].Role != "user" || got.Messages[1].Role != "assistant" {
		t.Errorf("unexpected turns: %+v", got.Messages)
	}
	if got.Model != "claude-test" || got.MaxTokens != 256 {
		t.Errorf("unexpected params: model=%q max_tokens=%d", got.Model, got.MaxTokens)
	}
}

func TestNewAnthropic_RequiresKey(t *testing.T) {
	if _, err := NewAnthropic(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
