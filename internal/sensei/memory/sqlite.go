package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

// SQLiteStore keeps insights in the local SQLite database. Similarity is
// computed in Go: every embedded row of the namespace is loaded and scored
// against the probe. That is fast enough for the thousands of insights one
// tutoring deployment accumulates.
//
// With a NoopEmbedder the store ranks by recency, newest first.
//
// The insights table is created by the store package migrations.
type SQLiteStore struct {
	db        *sql.DB
	embedder  Embedder
	namespace string
	logger    *slog.Logger
}

var (
	_ Store   = (*SQLiteStore)(nil)
	_ Counter = (*SQLiteStore)(nil)
)

// NewSQLiteStore returns a store over db. A nil embedder means NoopEmbedder,
// an empty namespace means DefaultNamespace, and a nil logger means
// slog.Default().
func NewSQLiteStore(db *sql.DB, embedder Embedder, namespace string, logger *slog.Logger) *SQLiteStore {
	if embedder == nil {
		embedder = NoopEmbedder{}
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{db: db, embedder: embedder, namespace: namespace, logger: logger}
}

// Insert embeds and stores document under a new id.
func (s *SQLiteStore) Insert(ctx context.Context, document string, md Metadata) (string, error) {
	vec, err := s.embedder.Embed(ctx, document)
	if err != nil {
		return "", storeErr(CodeEmbed, "insert", err)
	}

	var embeddingJSON []byte
	if vec != nil {
		embeddingJSON, err = json.Marshal(vec)
		if err != nil {
			return "", storeErr(CodeInsert, "insert", fmt.Errorf("marshal embedding: %w", err))
		}
	}

	id := NewID()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO insights (id, namespace, document, depth_level, saved_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, s.namespace, document, md.DepthLevel, md.Timestamp, nullableText(embeddingJSON),
	)
	if err != nil {
		return "", storeErr(CodeInsert, "insert", err)
	}

	s.logger.Debug("memory sqlite: stored insight",
		"id", id,
		"depth_level", md.DepthLevel,
		"document_len", len(document),
		"has_embedding", vec != nil,
	)
	return id, nil
}

// QueryTopK returns up to k insights ranked by cosine similarity to probe,
// or by recency when the embedder produces no vector.
func (s *SQLiteStore) QueryTopK(ctx context.Context, probe string, k int) ([]Insight, error) {
	if k <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, probe)
	if err != nil {
		return nil, storeErr(CodeEmbed, "query", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, depth_level, saved_at, embedding
		FROM insights
		WHERE namespace = ?
		ORDER BY saved_at DESC, rowid DESC`,
		s.namespace,
	)
	if err != nil {
		return nil, storeErr(CodeQuery, "query", err)
	}
	defer rows.Close()

	var results []Insight
	for rows.Next() {
		var (
			in            Insight
			embeddingJSON sql.NullString
		)
		if err := rows.Scan(&in.ID, &in.Document, &in.Metadata.DepthLevel, &in.Metadata.Timestamp, &embeddingJSON); err != nil {
			return nil, storeErr(CodeDecode, "query", err)
		}

		if vec == nil {
			results = append(results, in)
			if len(results) == k {
				break
			}
			continue
		}

		if !embeddingJSON.Valid || embeddingJSON.String == "" {
			continue
		}
		var stored []float32
		if err := json.Unmarshal([]byte(embeddingJSON.String), &stored); err != nil {
			s.logger.Warn("memory sqlite: skip malformed embedding", "id", in.ID, "err", err)
			continue
		}
		if len(stored) != len(vec) {
			continue
		}
		in.Score = cosineSimilarity(vec, stored)
		results = append(results, in)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(CodeQuery, "query", err)
	}

	if vec == nil {
		return results, nil
	}
	return rankByScore(results, k), nil
}

// Count returns the number of insights in the namespace.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM insights WHERE namespace = ?`, s.namespace).Scan(&n)
	if err != nil {
		return 0, storeErr(CodeQuery, "count", err)
	}
	return n, nil
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
