package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// contentGenerator is the part of llms.Model the gateway needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// LangChainGateway adapts any langchaingo model to Gateway.
type LangChainGateway struct {
	model contentGenerator
}

var _ Gateway = (*LangChainGateway)(nil)

// NewLangChain wraps an existing langchaingo model.
func NewLangChain(model llms.Model) *LangChainGateway {
	return &LangChainGateway{model: model}
}

// NewLangChainOpenAI builds a langchaingo OpenAI-compatible model from cfg.
// This is the route for local servers that speak the OpenAI wire format.
func NewLangChainOpenAI(cfg Config) (*LangChainGateway, error) {
	opts := []lcopenai.Option{lcopenai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, lcopenai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}
	m, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: langchain: new openai model: %w", err)
	}
	return &LangChainGateway{model: m}, nil
}

var chatTypes = map[Role]llms.ChatMessageType{
	RoleSystem:    llms.ChatMessageTypeSystem,
	RoleUser:      llms.ChatMessageTypeHuman,
	RoleAssistant: llms.ChatMessageTypeAI,
}

// Complete runs the conversation through the wrapped model.
func (g *LangChainGateway) Complete(ctx context.Context, req Request) (string, error) {
	content := lo.Map(req.Messages, func(m Message, _ int) llms.MessageContent {
		t, ok := chatTypes[m.Role]
		if !ok {
			t = llms.ChatMessageTypeHuman
		}
		return llms.TextParts(t, m.Content)
	})

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := g.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("llm: langchain: generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("%w: langchain returned no content", ErrEmptyCompletion)
	}
	return resp.Choices[0].Content, nil
}
