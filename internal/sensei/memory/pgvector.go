package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/bdobrica/sensei/common/retry"
)

// PGVectorStore keeps insights in Postgres and lets pgvector rank them by
// cosine distance. Requires a real embedder.
type PGVectorStore struct {
	db        *sql.DB
	embedder  Embedder
	namespace string
	logger    *slog.Logger
}

var (
	_ Store   = (*PGVectorStore)(nil)
	_ Counter = (*PGVectorStore)(nil)
)

const pgvectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS sensei_insights (
	id          TEXT PRIMARY KEY,
	namespace   TEXT NOT NULL,
	document    TEXT NOT NULL,
	depth_level TEXT NOT NULL DEFAULT '',
	saved_at    BIGINT NOT NULL,
	embedding   vector NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sensei_insights_namespace ON sensei_insights(namespace);
`

// OpenPostgres opens dsn with lib/pq and pings it, retrying with backoff
// while the database comes up.
func OpenPostgres(ctx context.Context, dsn string, rc retry.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("memory pgvector: open: %w", err)
	}
	if err := retry.Do(ctx, rc, db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory pgvector: ping: %w", err)
	}
	return db, nil
}

// NewPGVectorStore returns a store over db. The embedder must produce
// vectors; NoopEmbedder is rejected.
func NewPGVectorStore(db *sql.DB, embedder Embedder, namespace string, logger *slog.Logger) (*PGVectorStore, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	if _, noop := embedder.(NoopEmbedder); noop {
		return nil, ErrNoEmbedder
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGVectorStore{db: db, embedder: embedder, namespace: namespace, logger: logger}, nil
}

// Migrate creates the vector extension and the insights table.
func (s *PGVectorStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgvectorSchema); err != nil {
		return fmt.Errorf("memory pgvector: migrate: %w", err)
	}
	return nil
}

func (s *PGVectorStore) embed(ctx context.Context, op, text string) (pgvector.Vector, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, storeErr(CodeEmbed, op, err)
	}
	if len(vec) == 0 {
		return pgvector.Vector{}, storeErr(CodeEmbed, op, ErrNoEmbedder)
	}
	return pgvector.NewVector(vec), nil
}

// Insert embeds and stores document under a new id.
func (s *PGVectorStore) Insert(ctx context.Context, document string, md Metadata) (string, error) {
	vec, err := s.embed(ctx, "insert", document)
	if err != nil {
		return "", err
	}
	id := NewID()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sensei_insights (id, namespace, document, depth_level, saved_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, s.namespace, document, md.DepthLevel, md.Timestamp, vec,
	)
	if err != nil {
		return "", storeErr(CodeInsert, "insert", err)
	}
	s.logger.Debug("memory pgvector: stored insight", "id", id, "depth_level", md.DepthLevel)
	return id, nil
}

// QueryTopK returns up to k insights ordered by cosine distance to probe.
func (s *PGVectorStore) QueryTopK(ctx context.Context, probe string, k int) ([]Insight, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := s.embed(ctx, "query", probe)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, depth_level, saved_at, 1 - (embedding <=> $1) AS score
		FROM sensei_insights
		WHERE namespace = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vec, s.namespace, k,
	)
	if err != nil {
		return nil, storeErr(CodeQuery, "query", err)
	}
	defer rows.Close()

	var results []Insight
	for rows.Next() {
		var in Insight
		if err := rows.Scan(&in.ID, &in.Document, &in.Metadata.DepthLevel, &in.Metadata.Timestamp, &in.Score); err != nil {
			return nil, storeErr(CodeDecode, "query", err)
		}
		results = append(results, in)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(CodeQuery, "query", err)
	}
	return results, nil
}

// Count returns the number of insights in the namespace.
func (s *PGVectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensei_insights WHERE namespace = $1`, s.namespace).Scan(&n); err != nil {
		return 0, storeErr(CodeQuery, "count", err)
	}
	return n, nil
}
