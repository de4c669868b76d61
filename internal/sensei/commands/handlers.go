package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/bdobrica/sensei/common/trace"
	"github.com/bdobrica/sensei/common/version"
	"github.com/bdobrica/sensei/internal/sensei/llm"
	"github.com/bdobrica/sensei/internal/sensei/memory"
	"github.com/bdobrica/sensei/internal/sensei/observability"
	"github.com/bdobrica/sensei/internal/sensei/prompt"
	"github.com/bdobrica/sensei/internal/sensei/session"
)

// Action outcomes reported to an ActionRecorder.
const (
	OutcomeOK           = "ok"
	OutcomePrecondition = "precondition"
	OutcomeRateLimited  = "rate_limited"
	OutcomeGatewayError = "gateway_error"
	OutcomeStoreError   = "store_error"
	OutcomeError        = "error"
)

// ActionRecorder counts handled actions.
type ActionRecorder interface {
	ObserveAction(action, outcome string)
}

// Config wires Handlers to its collaborators.
type Config struct {
	Prefix   string
	Sessions *session.Registry
	Limiter  *RateLimiter
	Recorder ActionRecorder
	// Counter, when set, reports the number of saved insights in status
	// replies.
	Counter memory.Counter
	Logger  *slog.Logger
}

// Handlers executes chat actions against per-sender sessions.
type Handlers struct {
	router   *Router
	sessions *session.Registry
	limiter  *RateLimiter
	recorder ActionRecorder
	counter  memory.Counter
	logger   *slog.Logger
}

// NewHandlers builds the handler set and registers every command.
func NewHandlers(cfg Config) *Handlers {
	if cfg.Prefix == "" {
		cfg.Prefix = "/sensei"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handlers{
		router:   NewRouter(cfg.Prefix),
		sessions: cfg.Sessions,
		limiter:  cfg.Limiter,
		recorder: cfg.Recorder,
		counter:  cfg.Counter,
		logger:   cfg.Logger,
	}
	h.router.Register("start", h.handleStart)
	h.router.Register("review", h.handleReview)
	h.router.Register("save", h.handleSave)
	h.router.Register("recall", h.handleRecall)
	h.router.Register("reset", h.handleReset)
	h.router.Register("status", h.handleStatus)
	h.router.Register("topics", h.handleTopics)
	h.router.Register("help", h.handleHelp)
	h.router.Register("version", h.handleVersion)
	return h
}

// Prefix returns the command prefix.
func (h *Handlers) Prefix() string { return h.router.Prefix() }

// Handle runs one incoming message and returns the reply to send. An empty
// reply means nothing should be sent. Handle never returns an error: every
// failure is turned into a notice here.
func (h *Handlers) Handle(ctx context.Context, text string, origin Origin) string {
	ctx, _ = trace.Start(ctx)
	logger := observability.WithTrace(ctx, h.logger).With("room_id", origin.RoomID, "sender", origin.SenderID)
	start := time.Now()

	action := "chat"
	var (
		reply string
		err   error
	)
	if h.router.IsCommand(text) {
		var cmd *Command
		cmd, reply, err = h.router.Route(ctx, text, origin)
		if cmd != nil {
			action = cmd.Name
		}
	} else {
		reply, err = h.handleChat(ctx, text, origin)
	}

	outcome := classify(err)
	if errors.Is(err, ErrUnknownCommand) {
		action = "unknown"
	}
	if h.recorder != nil {
		h.recorder.ObserveAction(action, outcome)
	}

	switch outcome {
	case OutcomeOK:
		logger.Info("action handled", "action", action, "duration_ms", time.Since(start).Milliseconds())
		return reply
	case OutcomePrecondition, OutcomeRateLimited:
		logger.Info("action declined", "action", action, "reason", err)
	default:
		logger.Error("action failed", "action", action, "outcome", outcome, "err", err)
	}
	return h.notice(err)
}

func (h *Handlers) limited(origin Origin) error {
	if !h.limiter.Allow(origin.SenderID) {
		return errRateLimited
	}
	return nil
}

var errRateLimited = errors.New("commands: sender rate limited")

func (h *Handlers) handleChat(ctx context.Context, text string, origin Origin) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", session.ErrEmptyMessage
	}
	var reply string
	err := h.sessions.Do(session.Key(origin.RoomID, origin.SenderID), func(s *session.Session) error {
		if err := s.CheckSend(text); err != nil {
			return err
		}
		if err := h.limited(origin); err != nil {
			return err
		}
		var err error
		reply, err = s.SendMessage(ctx, text)
		return err
	})
	return reply, err
}

func (h *Handlers) handleStart(_ context.Context, cmd *Command, origin Origin) (string, error) {
	arg, ok := cmd.Arg(0)
	if !ok {
		return "", fmt.Errorf("%w: none given", session.ErrUnknownDepth)
	}
	d, ok := prompt.ParseDepth(arg)
	if !ok {
		return "", fmt.Errorf("%w: %q", session.ErrUnknownDepth, arg)
	}
	err := h.sessions.Do(session.Key(origin.RoomID, origin.SenderID), func(s *session.Session) error {
		return s.Start(d)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📚 Mode set to **%s**. Ask me about any Data Science or ML topic.\n\nNeed ideas? Try `%s topics`.", d.Title(), h.Prefix()), nil
}

func (h *Handlers) handleReview(ctx context.Context, _ *Command, origin Origin) (string, error) {
	var reply string
	err := h.sessions.Do(session.Key(origin.RoomID, origin.SenderID), func(s *session.Session) error {
		if err := s.CheckReview(); err != nil {
			return err
		}
		if err := h.limited(origin); err != nil {
			return err
		}
		var err error
		reply, err = s.TriggerReview(ctx)
		return err
	})
	return reply, err
}

func (h *Handlers) handleSave(ctx context.Context, _ *Command, origin Origin) (string, error) {
	var id string
	err := h.sessions.Do(session.Key(origin.RoomID, origin.SenderID), func(s *session.Session) error {
		var err error
		id, err = s.SaveResponse(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("💾 Saved to memory (`%s`).", id), nil
}

func (h *Handlers) handleRecall(ctx context.Context, _ *Command, origin Origin) (string, error) {
	var reply string
	err := h.sessions.Do(session.Key(origin.RoomID, origin.SenderID), func(s *session.Session) error {
		if err := s.CheckRecall(); err != nil {
			return err
		}
		if err := h.limited(origin); err != nil {
			return err
		}
		var err error
		reply, err = s.RetrieveMemory(ctx)
		return err
	})
	return reply, err
}

func (h *Handlers) handleReset(_ context.Context, _ *Command, origin Origin) (string, error) {
	_ = h.sessions.Do(session.Key(origin.RoomID, origin.SenderID), func(s *session.Session) error {
		s.Reset()
		return nil
	})
	return fmt.Sprintf("🔄 Session reset. Saved insights are kept. Pick a mode with `%s start interview|exam|research`.", h.Prefix()), nil
}

func (h *Handlers) handleStatus(ctx context.Context, _ *Command, origin Origin) (string, error) {
	var sb strings.Builder
	_ = h.sessions.Do(session.Key(origin.RoomID, origin.SenderID), func(s *session.Session) error {
		fmt.Fprintf(&sb, "**Mode:** %s\n", s.Depth().Title())
		fmt.Fprintf(&sb, "**Turns:** %d\n", s.Turns())
		if s.MemoryEnabled() {
			sb.WriteString("**Memory:** enabled\n")
		} else {
			sb.WriteString("**Memory:** disabled\n")
		}
		if s.Turns() > 0 {
			fmt.Fprintf(&sb, "Review is available: `%s review`.\n", h.Prefix())
		}
		return nil
	})
	if h.counter != nil {
		if n, err := h.counter.Count(ctx); err == nil {
			fmt.Fprintf(&sb, "**Saved insights:** %d\n", n)
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (h *Handlers) handleTopics(context.Context, *Command, Origin) (string, error) {
	lines := lo.Map(prompt.ExampleTopics(), func(t string, _ int) string { return "• " + t })
	return "💡 **Example topics**\n" + strings.Join(lines, "\n"), nil
}

func (h *Handlers) handleHelp(context.Context, *Command, Origin) (string, error) {
	p := h.Prefix()
	depths := strings.Join(lo.Map(prompt.Depths(), func(d prompt.Depth, _ int) string { return string(d) }), "|")
	return strings.Join([]string{
		"🎓 **Sensei** - your study partner for Data Science and ML",
		"",
		fmt.Sprintf("`%s start %s` - choose a depth level", p, depths),
		"Then just type your question.",
		"",
		fmt.Sprintf("`%s review` - recap the topics covered so far", p),
		fmt.Sprintf("`%s save` - keep my last answer for future sessions", p),
		fmt.Sprintf("`%s recall` - bring back a related insight from a past session", p),
		fmt.Sprintf("`%s reset` - start over (saved insights are kept)", p),
		fmt.Sprintf("`%s status` - show the current mode", p),
		fmt.Sprintf("`%s topics` - example topics", p),
		fmt.Sprintf("`%s version` - build information", p),
	}, "\n"), nil
}

func (h *Handlers) handleVersion(context.Context, *Command, Origin) (string, error) {
	return version.Info(), nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, errRateLimited), errors.Is(err, llm.ErrRateLimit):
		return OutcomeRateLimited
	case session.IsPrecondition(err), errors.Is(err, ErrUnknownCommand):
		return OutcomePrecondition
	case errors.Is(err, session.ErrGateway):
		return OutcomeGatewayError
	case errors.Is(err, session.ErrStore):
		return OutcomeStoreError
	default:
		return OutcomeError
	}
}

// notice converts err into the text shown to the student.
func (h *Handlers) notice(err error) string {
	p := h.Prefix()
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		return ""
	case errors.Is(err, errRateLimited):
		return "⏳ You're sending messages faster than I can think. Please wait a moment and try again."
	case errors.Is(err, llm.ErrRateLimit):
		return "⏳ The language model is rate-limited upstream right now. Your message is kept; send it again in a moment."
	case errors.Is(err, session.ErrNotStarted):
		return fmt.Sprintf("Pick a depth level first: `%s start interview|exam|research`.", p)
	case errors.Is(err, session.ErrUnknownDepth):
		return fmt.Sprintf("Unknown depth level. Use `%s start interview`, `exam` or `research`.", p)
	case errors.Is(err, session.ErrNothingToReview):
		return "Nothing to review yet. Ask me something first."
	case errors.Is(err, session.ErrNothingToSave):
		return "Nothing to save yet: I haven't answered anything in this session."
	case errors.Is(err, session.ErrNotEnoughContext):
		return "Not enough context to search past sessions. Have at least one exchange first."
	case errors.Is(err, session.ErrMemoryDisabled):
		return "Memory is disabled on this deployment."
	case errors.Is(err, session.ErrNothingFound):
		return "🔍 No related saved insight found."
	case errors.Is(err, ErrUnknownCommand):
		return fmt.Sprintf("Unknown command. Try `%s help`.", p)
	case errors.Is(err, session.ErrGateway):
		return "⚠️ I couldn't get an answer right now. Your message is kept; send it again to retry."
	case errors.Is(err, session.ErrStore):
		return "⚠️ Saving failed, nothing was stored. Please try again."
	default:
		return "⚠️ Something went wrong handling that. Please try again."
	}
}
