// Package observability sets up structured logging and Prometheus metrics
// for Sensei.
//
// Every chat action runs under a trace id; WithTrace returns a logger that
// stamps it on each line.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bdobrica/sensei/common/trace"
)

// ParseLevel maps "debug", "warn" and "error" to slog levels. Anything else
// is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a text or JSON logger writing to w.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup installs a stdout logger as the slog default and returns it.
func Setup(level, format string) *slog.Logger {
	l := NewLogger(os.Stdout, level, format)
	slog.SetDefault(l)
	return l
}

// WithTrace returns base (or slog.Default when nil) with the trace_id of
// ctx attached.
func WithTrace(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	id := trace.FromContext(ctx)
	if id == "" {
		return base
	}
	return base.With("trace_id", id)
}
