package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// vectorIndex is the part of *pinecone.IndexConnection the store uses.
type vectorIndex interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
}

// PineconeConfig selects the managed index and namespace.
type PineconeConfig struct {
	APIKey    string
	Index     string
	Namespace string
}

// PineconeStore keeps insights in a Pinecone index. Documents and metadata
// travel as vector metadata.
type PineconeStore struct {
	idx      vectorIndex
	embedder Embedder
	logger   *slog.Logger
}

var _ Store = (*PineconeStore)(nil)

// NewPineconeStore resolves the index host and opens a namespaced
// connection.
func NewPineconeStore(ctx context.Context, cfg PineconeConfig, embedder Embedder, logger *slog.Logger) (*PineconeStore, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	if _, noop := embedder.(NoopEmbedder); noop {
		return nil, ErrNoEmbedder
	}
	if cfg.APIKey == "" || cfg.Index == "" {
		return nil, errors.New("memory pinecone: api key and index name are required")
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("memory pinecone: new client: %w", err)
	}
	desc, err := pc.DescribeIndex(ctx, cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("memory pinecone: describe index %q: %w", cfg.Index, err)
	}
	conn, err := pc.Index(pinecone.NewIndexConnParams{Host: desc.Host, Namespace: ns})
	if err != nil {
		return nil, fmt.Errorf("memory pinecone: connect index: %w", err)
	}
	return newPineconeStore(conn, embedder, logger), nil
}

func newPineconeStore(idx vectorIndex, embedder Embedder, logger *slog.Logger) *PineconeStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PineconeStore{idx: idx, embedder: embedder, logger: logger}
}

func (s *PineconeStore) embed(ctx context.Context, op, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, storeErr(CodeEmbed, op, err)
	}
	if len(vec) == 0 {
		return nil, storeErr(CodeEmbed, op, ErrNoEmbedder)
	}
	return vec, nil
}

// Insert embeds document and upserts it under a new id.
func (s *PineconeStore) Insert(ctx context.Context, document string, md Metadata) (string, error) {
	vec, err := s.embed(ctx, "insert", document)
	if err != nil {
		return "", err
	}
	meta, err := structpb.NewStruct(map[string]any{
		"document":    document,
		"timestamp":   md.Timestamp,
		"depth_level": md.DepthLevel,
	})
	if err != nil {
		return "", storeErr(CodeInsert, "insert", fmt.Errorf("build metadata: %w", err))
	}

	id := NewID()
	if _, err := s.idx.UpsertVectors(ctx, []*pinecone.Vector{{Id: id, Values: &vec, Metadata: meta}}); err != nil {
		return "", storeErr(CodeInsert, "insert", err)
	}
	s.logger.Debug("memory pinecone: stored insight", "id", id, "depth_level", md.DepthLevel)
	return id, nil
}

// QueryTopK asks the index for the k nearest vectors to probe.
func (s *PineconeStore) QueryTopK(ctx context.Context, probe string, k int) ([]Insight, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := s.embed(ctx, "query", probe)
	if err != nil {
		return nil, err
	}
	res, err := s.idx.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vec,
		TopK:            uint32(k),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, storeErr(CodeQuery, "query", err)
	}
	if res == nil {
		return nil, nil
	}

	results := make([]Insight, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m == nil || m.Vector == nil || m.Vector.Metadata == nil {
			continue
		}
		in, err := decodePineconeMatch(m.Vector.Id, m.Vector.Metadata.AsMap())
		if err != nil {
			s.logger.Warn("memory pinecone: skip malformed match", "id", m.Vector.Id, "err", err)
			continue
		}
		in.Score = float64(m.Score)
		results = append(results, in)
	}
	return results, nil
}

func decodePineconeMatch(id string, meta map[string]any) (Insight, error) {
	doc, ok := meta["document"].(string)
	if !ok {
		return Insight{}, storeErr(CodeDecode, "query", errors.New("metadata has no document"))
	}
	in := Insight{ID: id, Document: doc}
	in.Metadata.DepthLevel, _ = meta["depth_level"].(string)
	if ts, ok := meta["timestamp"].(float64); ok {
		in.Metadata.Timestamp = int64(ts)
	}
	return in, nil
}
