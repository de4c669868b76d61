// Package app wires the Sensei components together and runs them.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/sensei/common/retry"
	"github.com/bdobrica/sensei/internal/sensei/commands"
	"github.com/bdobrica/sensei/internal/sensei/config"
	"github.com/bdobrica/sensei/internal/sensei/llm"
	"github.com/bdobrica/sensei/internal/sensei/matrix"
	"github.com/bdobrica/sensei/internal/sensei/memory"
	"github.com/bdobrica/sensei/internal/sensei/observability"
	"github.com/bdobrica/sensei/internal/sensei/session"
	"github.com/bdobrica/sensei/internal/sensei/store"
)

// janitorInterval is how often idle sessions and rate-limit buckets are
// swept.
const janitorInterval = time.Minute

// App owns every long-lived Sensei component.
type App struct {
	config   *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	store    *store.Store
	pg       *sql.DB
	memory   memory.Store
	counter  memory.Counter
	sessions *session.Registry
	limiter  *commands.RateLimiter
	handlers *commands.Handlers

	matrix       *matrix.Client
	healthServer *HealthServer
}

// New builds the application from a validated configuration. It opens the
// database and the memory backend but starts no network listeners.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		config:  cfg,
		logger:  slog.Default().With("component", "app"),
		metrics: observability.NewMetrics(),
	}

	st, err := store.New(ctx, cfg.Database.Path, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}
	a.store = st

	if err := a.initMemory(ctx); err != nil {
		a.Stop()
		return nil, err
	}

	gw, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey.Reveal(),
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		a.Stop()
		return nil, fmt.Errorf("app: language model gateway: %w", err)
	}
	gw = llm.Instrument(gw, cfg.LLM.Provider, a.metrics)

	temperature := cfg.EffectiveTemperature()
	opts := session.Options{MaxTokens: cfg.LLM.MaxTokens, Temperature: &temperature}
	a.sessions = session.NewRegistry(func(key string) *session.Session {
		return session.New(session.Deps{
			Gateway: gw,
			Memory:  a.memory,
			Logger:  slog.Default().With("session_key", key),
		}, opts)
	}, cfg.Sessions.IdleTimeout)

	a.limiter = commands.NewRateLimiter(cfg.Commands.RatePerMinute)
	a.handlers = commands.NewHandlers(commands.Config{
		Prefix:   cfg.Commands.Prefix,
		Sessions: a.sessions,
		Limiter:  a.limiter,
		Recorder: a.metrics,
		Counter:  a.counter,
		Logger:   slog.Default(),
	})

	if cfg.Matrix.Enabled() {
		mc, err := matrix.New(matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken.Reveal(),
			Rooms:       cfg.Matrix.Rooms,
			DB:          st.DB(),
			Logger:      slog.Default(),
		})
		if err != nil {
			a.Stop()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.matrix = mc
	}

	if cfg.HTTP.Addr != "" {
		a.healthServer = NewHealthServer(cfg.HTTP.Addr, a.counter, a.sessions.Len)
		a.healthServer.Handle("/metrics", a.metrics.Handler())
	}

	a.logger.Info("sensei initialised",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"memory_backend", cfg.Memory.Backend,
		"matrix", cfg.Matrix.Enabled(),
		"http_addr", cfg.HTTP.Addr,
	)
	return a, nil
}

// initMemory opens the configured memory backend. Backend "none" leaves
// memory disabled, which turns save and recall into notices.
func (a *App) initMemory(ctx context.Context) error {
	cfg := a.config.Memory
	if !a.config.MemoryEnabled() {
		a.logger.Info("memory store disabled")
		return nil
	}

	var embedder memory.Embedder = memory.NoopEmbedder{}
	if cfg.Embedding.Provider == "openai" {
		e, err := memory.NewOpenAIEmbedder(memory.EmbedderConfig{
			APIKey:  cfg.Embedding.APIKey.Reveal(),
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
		})
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		embedder = e
	}

	var backend memory.Store
	switch cfg.Backend {
	case config.BackendSQLite:
		s := memory.NewSQLiteStore(a.store.DB(), embedder, cfg.Namespace, slog.Default())
		backend, a.counter = s, s
	case config.BackendPGVector:
		db, err := memory.OpenPostgres(ctx, cfg.PostgresDSN.Reveal(), retry.DefaultConfig)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.pg = db
		s, err := memory.NewPGVectorStore(db, embedder, cfg.Namespace, slog.Default())
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		backend, a.counter = s, s
	case config.BackendPinecone:
		s, err := memory.NewPineconeStore(ctx, memory.PineconeConfig{
			APIKey:    cfg.PineconeAPIKey.Reveal(),
			Index:     cfg.PineconeIndex,
			Namespace: cfg.Namespace,
		}, embedder, slog.Default())
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		backend = s
	default:
		return fmt.Errorf("app: %w: unknown memory backend %q", config.ErrInvalid, cfg.Backend)
	}

	a.memory = memory.Instrument(backend, a.metrics, slog.Default())
	a.logger.Info("memory store ready", "backend", cfg.Backend, "namespace", cfg.Namespace)
	return nil
}

// Handle answers one message from origin. It matches matrix.MessageHandler.
func (a *App) Handle(ctx context.Context, origin commands.Origin, text string) string {
	reply := a.handlers.Handle(ctx, text, origin)
	a.metrics.SetActiveSessions(a.sessions.Len())
	return reply
}

// Prefix returns the chat command prefix.
func (a *App) Prefix() string { return a.handlers.Prefix() }

// Metrics exposes the metric set, mainly for tests.
func (a *App) Metrics() *observability.Metrics { return a.metrics }

// Run starts the optional HTTP server and Matrix client, then sweeps idle
// sessions until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			a.logger.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	if a.matrix != nil {
		a.logger.Info("starting Matrix sync")
		if err := a.matrix.Start(ctx, a.Handle); err != nil {
			return fmt.Errorf("app: start matrix: %w", err)
		}
	}

	go a.janitor(ctx)

	a.logger.Info("sensei is running")
	<-ctx.Done()
	a.logger.Info("shutting down")
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *App) sweep() {
	evicted := a.sessions.EvictIdle()
	pruned := a.limiter.Prune(a.config.Sessions.IdleTimeout)
	a.metrics.SetActiveSessions(a.sessions.Len())
	if evicted > 0 || pruned > 0 {
		a.logger.Debug("idle sweep", "sessions_evicted", evicted, "limiters_pruned", pruned)
	}
}

// Stop releases every resource. It is safe to call on a partially built App.
func (a *App) Stop() {
	if a.matrix != nil {
		a.logger.Info("stopping Matrix client")
		a.matrix.Stop()
	}
	if a.healthServer != nil {
		a.healthServer.Stop()
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.logger.Warn("close postgres", "err", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close database", "err", err)
		}
	}
}
