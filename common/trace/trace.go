// Package trace correlates the log lines of one chat action.
//
// The commands layer starts a trace for every inbound message; the session,
// gateway, and memory adapters pick it up from the context.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type traceKey struct{}

// GenerateID returns a random trace id of the form "t_<32 hex chars>".
func GenerateID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%x", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

// WithTraceID returns a child context carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// Start returns a context carrying a fresh trace id unless ctx already has one.
func Start(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := GenerateID()
	return WithTraceID(ctx, id), id
}

// FromContext returns the trace id in ctx, or "".
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
