package memory

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// Embedder turns text into a vector.
type Embedder interface {
	// Embed returns nil with no error when embedding is not available.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NoopEmbedder returns nil vectors. The SQLite store then ranks by recency.
type NoopEmbedder struct{}

func (NoopEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }

var _ Embedder = NoopEmbedder{}

// LangChainEmbedder adapts a langchaingo embedder.
type LangChainEmbedder struct {
	inner embeddings.Embedder
}

var _ Embedder = (*LangChainEmbedder)(nil)

// NewLangChainEmbedder wraps an existing langchaingo embedder.
func NewLangChainEmbedder(e embeddings.Embedder) *LangChainEmbedder {
	return &LangChainEmbedder{inner: e}
}

// EmbedderConfig configures the OpenAI-compatible embedding model.
type EmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIEmbedder builds a langchaingo embedder on the OpenAI embeddings
// endpoint, or any endpoint compatible with it.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*LangChainEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	opts := []lcopenai.Option{
		lcopenai.WithToken(cfg.APIKey),
		lcopenai.WithEmbeddingModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("memory: embedder: new openai client: %w", err)
	}
	e, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("memory: embedder: %w", err)
	}
	return &LangChainEmbedder{inner: e}, nil
}

func (l *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := l.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	return vec, nil
}
