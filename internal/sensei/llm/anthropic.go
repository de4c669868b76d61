package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicGateway talks to the Anthropic Messages API.
type AnthropicGateway struct {
	client anthropic.Client
	model  string
}

var _ Gateway = (*AnthropicGateway)(nil)

// NewAnthropic returns a gateway backed by anthropic-sdk-go. SDK-level
// retries are disabled; a failed turn is reported once and the user retries.
func NewAnthropic(cfg Config) (*AnthropicGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: anthropic: API key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicGateway{client: anthropic.NewClient(opts...), model: model}, nil
}

// Complete sends the conversation to the Messages API. System messages are
// lifted into the request's system field.
func (g *AnthropicGateway) Complete(ctx context.Context, req Request) (string, error) {
	system, turns := splitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    make([]anthropic.MessageParam, 0, len(turns)),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", ErrRateLimit, err)
		}
		return "", fmt.Errorf("llm: anthropic: create message: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: anthropic stop reason %q", ErrEmptyCompletion, resp.StopReason)
	}
	return sb.String(), nil
}
