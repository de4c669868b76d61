// Package memory persists saved insights and retrieves them by similarity.
//
// An insight is an assistant answer the student chose to keep. Insights live
// in one shared namespace that outlives every session: they are written
// once, never mutated, and may be recalled any number of times. Ranking is
// the backend's job; this package only adapts SQLite, Postgres/pgvector and
// Pinecone to one small Store contract.
package memory

import (
	"context"
	"errors"
	"fmt"
)

// DefaultNamespace is the shared namespace all sessions read and write.
const DefaultNamespace = "saved_understanding"

// Metadata is stored alongside every insight.
type Metadata struct {
	// Timestamp is the save time in Unix seconds.
	Timestamp int64
	// DepthLevel is the depth of the session that saved the insight.
	DepthLevel string
}

// Insight is one stored document returned by a query.
type Insight struct {
	ID       string
	Document string
	Metadata Metadata
	// Score is the backend similarity score; zero when the backend ranked by
	// recency instead.
	Score float64
}

// Store is the contract sessions use to save and recall insights.
//
// Implementations must be safe for concurrent use; every call is atomic with
// respect to other calls.
type Store interface {
	// Insert stores document under a freshly generated id and returns it.
	Insert(ctx context.Context, document string, md Metadata) (string, error)

	// QueryTopK returns at most k insights, most similar to probe first.
	// An empty store yields an empty slice and no error.
	QueryTopK(ctx context.Context, probe string, k int) ([]Insight, error)
}

// Counter is implemented by stores that can report how many insights they
// hold. Used by the status endpoint.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Error codes carried by StoreError and reported to metrics.
const (
	CodeOK          = "ok"
	CodeEmpty       = "empty"
	CodeEmbed       = "embed"
	CodeInsert      = "insert"
	CodeQuery       = "query"
	CodeDecode      = "decode"
	CodeUnavailable = "unavailable"
)

// ErrNoEmbedder is returned by vector-only backends constructed without a
// working embedder.
var ErrNoEmbedder = errors.New("memory: backend requires an embedder")

// StoreError tags a backend failure with a code so operators can tell a real
// outage apart from an empty result.
type StoreError struct {
	Code string
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("memory: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(code, op string, err error) error {
	return &StoreError{Code: code, Op: op, Err: err}
}

// ErrorCode returns the StoreError code of err, CodeOK for nil, and
// CodeUnavailable for any other error.
func ErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnavailable
}
