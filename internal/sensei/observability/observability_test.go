package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bdobrica/sensei/common/trace"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithTrace_AddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "info", "json")
	ctx := trace.WithTraceID(context.Background(), "t_abc")

	WithTrace(ctx, base).Info("hello")
	if !strings.Contains(buf.String(), `"trace_id":"t_abc"`) {
		t.Fatalf("expected trace_id in log line, got %s", buf.String())
	}

	buf.Reset()
	WithTrace(context.Background(), base).Info("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Fatalf("no trace id expected, got %s", buf.String())
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", "text")
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.ObserveGateway("openai", "ok", 120*time.Millisecond)
	m.ObserveGateway("openai", "ok", 80*time.Millisecond)
	m.ObserveGateway("openai", "timeout", time.Minute)
	m.ObserveMemory("query", "unavailable", time.Millisecond)
	m.ObserveAction("save", "ok")
	m.SetActiveSessions(3)

	if got := testutil.ToFloat64(m.gatewayCalls.WithLabelValues("openai", "ok")); got != 2 {
		t.Errorf("gateway ok calls: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.memoryCalls.WithLabelValues("query", "unavailable")); got != 1 {
		t.Errorf("memory unavailable calls: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sessions); got != 3 {
		t.Errorf("active sessions: got %v, want 3", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveAction("recall", "nothing_found")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `sensei_actions_total{action="recall",outcome="nothing_found"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}
