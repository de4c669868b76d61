package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bdobrica/sensei/common/version"
	"github.com/bdobrica/sensei/internal/sensei/memory"
)

// HealthServer exposes /health, /status and any extra routes registered
// with Handle (such as /metrics). It is optional; Sensei runs without it
// when the HTTP address is empty.
type HealthServer struct {
	addr      string
	counter   memory.Counter
	sessions  func() int
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	Commit         string    `json:"commit"`
	BuildTime      string    `json:"build_time"`
	StartedAt      time.Time `json:"started_at"`
	UptimeSecs     float64   `json:"uptime_seconds"`
	ActiveSessions int       `json:"active_sessions"`
	// InsightCount is -1 when the backend cannot count or the count failed.
	InsightCount int64 `json:"insight_count"`
}

// NewHealthServer creates the HTTP server without starting it. counter and
// sessions may be nil.
func NewHealthServer(addr string, counter memory.Counter, sessions func() int) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		addr:      addr,
		counter:   counter,
		sessions:  sessions,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("GET /health", hs.handleHealth)
	mux.HandleFunc("GET /status", hs.handleStatus)
	return hs
}

func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Handle registers an extra route. Call it before Start.
func (h *HealthServer) Handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

// Start listens in the background and shuts down when ctx is cancelled. It
// returns once the listener is open.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}

	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		h.Stop()
	}()
	return nil
}

func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	insights := int64(-1)
	if h.counter != nil {
		if n, err := h.counter.Count(r.Context()); err == nil {
			insights = n
		} else {
			slog.Warn("status: count insights", "err", err)
		}
	}
	active := 0
	if h.sessions != nil {
		active = h.sessions()
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:         "ok",
		Version:        version.Version,
		Commit:         version.GitCommit,
		BuildTime:      version.BuildTime,
		StartedAt:      h.startedAt,
		UptimeSecs:     time.Since(h.startedAt).Seconds(),
		ActiveSessions: active,
		InsightCount:   insights,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
