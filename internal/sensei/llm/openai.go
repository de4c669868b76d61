package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4.1-nano"

// chatClient is the subset of *openai.Client used by OpenAIGateway.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGateway talks to the OpenAI chat completions API or any compatible
// endpoint.
type OpenAIGateway struct {
	client chatClient
	model  string
}

var _ Gateway = (*OpenAIGateway)(nil)

// NewOpenAI returns a gateway backed by go-openai.
func NewOpenAI(cfg Config) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: openai: API key is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIGateway{client: openai.NewClientWithConfig(oc), model: model}, nil
}

// Complete sends the conversation to the chat completions endpoint.
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: lo.Map(req.Messages, func(m Message, _ int) openai.ChatCompletionMessage {
			return openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
		}),
		MaxTokens:   req.MaxTokens,
		Temperature: openAITemperature(req.Temperature),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %s", ErrRateLimit, apiErr.Message)
		}
		return "", fmt.Errorf("llm: openai: create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrEmptyCompletion)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: openai finish reason %q", ErrEmptyCompletion, resp.Choices[0].FinishReason)
	}
	return content, nil
}

// openAITemperature maps t onto the request field. go-openai omits a zero
// temperature, so an explicit 0 is sent as the smallest positive float32.
func openAITemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
