// Package llm provides the language-model gateway used by tutoring sessions.
//
// A Gateway takes an ordered list of role-tagged messages plus generation
// parameters and returns one completion string. The package ships adapters
// for the OpenAI chat API (go-openai), the Anthropic Messages API, any
// langchaingo model, and a deterministic mock for running without
// credentials.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyCompletion is returned when the upstream API answers successfully
// but the reply carries no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// ErrRateLimit is returned when the upstream API reports HTTP 429.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// ErrTimeout is returned when a completion does not finish within the
// gateway timeout.
var ErrTimeout = errors.New("llm: completion timed out")

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("llm: unknown provider")

// Role tags a message in a completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry in a completion request.
type Message struct {
	Role    Role
	Content string
}

// Request is the input to a single completion call. Messages are sent in
// order; a system message, when present, comes first.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Gateway produces one completion for a request.
//
// Implementations must be safe for concurrent use.
type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderLangChain = "langchain"
	ProviderMock      = "mock"
)

// Config selects and configures a gateway backend.
type Config struct {
	Provider string
	APIKey   string
	// BaseURL overrides the API endpoint (Azure, Ollama, proxies).
	BaseURL string
	Model   string
	// Timeout bounds every completion. Zero disables the bound.
	Timeout time.Duration
}

// New builds the gateway named by cfg.Provider, wrapped with cfg.Timeout.
func New(cfg Config) (Gateway, error) {
	var (
		g   Gateway
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI, "":
		g, err = NewOpenAI(cfg)
	case ProviderAnthropic:
		g, err = NewAnthropic(cfg)
	case ProviderLangChain:
		g, err = NewLangChainOpenAI(cfg)
	case ProviderMock:
		g = NewMock()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		g = WithTimeout(g, cfg.Timeout)
	}
	return g, nil
}

// splitSystem separates system messages from the conversational turns.
// Multiple system messages are joined by a blank line.
func splitSystem(msgs []Message) (system string, turns []Message) {
	var parts []string
	for _, m := range msgs {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(parts, "\n\n"), turns
}
