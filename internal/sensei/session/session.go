// Package session implements the tutoring session state machine.
//
// A Session starts in Setup (no depth level). Start moves it to Active,
// fixing the system prompt for the rest of the session. Every model call
// sends the system prompt followed by the full history. Reset returns to
// Setup and never touches the memory store.
//
// A Session is not safe for concurrent use; Registry serialises access per
// student.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bdobrica/sensei/internal/sensei/llm"
	"github.com/bdobrica/sensei/internal/sensei/memory"
	"github.com/bdobrica/sensei/internal/sensei/prompt"
)

// Generation defaults.
const (
	DefaultMaxTokens         = 2000
	DefaultTemperature       = 0.7
	DefaultMemoryTemperature = 0.5
)

// Params are the fixed generation parameters of every completion.
type Params struct {
	MaxTokens   int
	Temperature float64
}

// Deps are the collaborators a session calls.
type Deps struct {
	Gateway llm.Gateway
	// Memory is the shared insight store. Nil disables save and recall.
	Memory memory.Store
	Logger *slog.Logger
}

// Options tune a session. The zero value uses the defaults.
type Options struct {
	// MaxTokens bounds every reply. Zero uses DefaultMaxTokens.
	MaxTokens int
	// Temperature is used as given, zero included. Nil picks
	// DefaultMemoryTemperature when Memory is set, DefaultTemperature otherwise.
	Temperature *float64
	// ID labels the session in logs. Generated when empty.
	ID string
	// Now is the clock used for insight timestamps.
	Now func() time.Time
}

// Session is one student's tutoring conversation.
type Session struct {
	id      string
	gateway llm.Gateway
	memory  memory.Store
	params  Params
	logger  *slog.Logger
	now     func() time.Time

	depth        prompt.Depth
	systemPrompt string
	history      []llm.Message
}

// New returns a session in the Setup state.
func New(deps Deps, opts Options) *Session {
	params := Params{MaxTokens: opts.MaxTokens, Temperature: DefaultTemperature}
	if params.MaxTokens <= 0 {
		params.MaxTokens = DefaultMaxTokens
	}
	switch {
	case opts.Temperature != nil:
		params.Temperature = *opts.Temperature
	case deps.Memory != nil:
		params.Temperature = DefaultMemoryTemperature
	}
	if opts.ID == "" {
		opts.ID = memory.NewID()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:      opts.ID,
		gateway: deps.Gateway,
		memory:  deps.Memory,
		params:  params,
		logger:  logger.With("session_id", opts.ID),
		now:     opts.Now,
	}
}

func (s *Session) ID() string { return s.id }

// Depth returns the selected depth level, DepthUnset in Setup.
func (s *Session) Depth() prompt.Depth { return s.depth }

// SystemPrompt returns the fixed prompt, empty in Setup.
func (s *Session) SystemPrompt() string { return s.systemPrompt }

// Active reports whether a depth level has been selected.
func (s *Session) Active() bool { return s.depth != prompt.DepthUnset }

// History returns a copy of the conversation in chronological order.
func (s *Session) History() []llm.Message { return slices.Clone(s.history) }

// Turns counts completed exchanges.
func (s *Session) Turns() int {
	n := 0
	for _, m := range s.history {
		if m.Role == llm.RoleAssistant {
			n++
		}
	}
	return n
}

// MemoryEnabled reports whether save and recall are available.
func (s *Session) MemoryEnabled() bool { return s.memory != nil }

// Params returns the generation parameters.
func (s *Session) Params() Params { return s.params }

// Start selects the depth level and fixes the system prompt. Calling it on
// an active session overwrites the prompt and keeps the history.
func (s *Session) Start(d prompt.Depth) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDepth, d)
	}
	if s.Active() {
		s.logger.Warn("session restarted while active; keeping history",
			"from", s.depth, "to", d, "history_len", len(s.history))
	}
	s.depth = d
	s.systemPrompt = prompt.SystemPrompt(d)
	s.logger.Info("session started", "depth", d)
	return nil
}

// SendMessage appends text as a user turn, asks the model, appends and
// returns its reply. Blank text is rejected without touching history.
func (s *Session) SendMessage(ctx context.Context, text string) (string, error) {
	if err := s.CheckSend(text); err != nil {
		return "", err
	}
	return s.exchange(ctx, text)
}

// CheckSend returns the precondition error SendMessage would return for
// text, or nil.
func (s *Session) CheckSend(text string) error {
	if !s.Active() {
		return ErrNotStarted
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// TriggerReview asks the model to list the topics covered so far.
func (s *Session) TriggerReview(ctx context.Context) (string, error) {
	if err := s.CheckReview(); err != nil {
		return "", err
	}
	return s.exchange(ctx, prompt.ReviewInstruction)
}

// CheckReview returns the precondition error TriggerReview would return, or
// nil.
func (s *Session) CheckReview() error {
	if !s.Active() {
		return ErrNotStarted
	}
	if len(s.history) == 0 {
		return ErrNothingToReview
	}
	return nil
}

// SaveResponse stores the most recent assistant reply as an insight and
// returns its id.
func (s *Session) SaveResponse(ctx context.Context) (string, error) {
	if !s.Active() {
		return "", ErrNotStarted
	}
	doc, ok := s.lastAssistant()
	if !ok {
		return "", ErrNothingToSave
	}
	if s.memory == nil {
		return "", ErrMemoryDisabled
	}

	md := memory.Metadata{Timestamp: s.now().Unix(), DepthLevel: string(s.depth)}
	id, err := s.memory.Insert(ctx, doc, md)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}
	s.logger.Info("insight saved", "insight_id", id, "depth", s.depth)
	return id, nil
}

// RetrieveMemory looks up the saved insight closest to the last two turns
// and asks the model to revisit it. Store failures and empty results both
// yield ErrNothingFound and leave history untouched.
func (s *Session) RetrieveMemory(ctx context.Context) (string, error) {
	if err := s.CheckRecall(); err != nil {
		return "", err
	}

	n := len(s.history)
	probe := s.history[n-2].Content + " " + s.history[n-1].Content
	found, err := s.memory.QueryTopK(ctx, probe, 1)
	if err != nil {
		s.logger.Warn("memory lookup failed; reporting nothing found",
			"code", memory.ErrorCode(err), "err", err)
		return "", ErrNothingFound
	}
	if len(found) == 0 {
		return "", ErrNothingFound
	}

	s.logger.Info("insight recalled", "insight_id", found[0].ID, "score", found[0].Score)
	return s.exchange(ctx, prompt.RecallInstruction(found[0].Document))
}

// CheckRecall returns the precondition error RetrieveMemory would return,
// or nil. It never queries the store.
func (s *Session) CheckRecall() error {
	if !s.Active() {
		return ErrNotStarted
	}
	if len(s.history) < 2 {
		return ErrNotEnoughContext
	}
	if s.memory == nil {
		return ErrMemoryDisabled
	}
	return nil
}

// Reset returns the session to Setup.
func (s *Session) Reset() {
	s.depth = prompt.DepthUnset
	s.systemPrompt = ""
	s.history = nil
	s.logger.Info("session reset")
}

// exchange appends a user turn, calls the gateway with the system prompt
// and full history, and appends the reply. On failure the user turn stays.
func (s *Session) exchange(ctx context.Context, userText string) (string, error) {
	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: userText})

	msgs := make([]llm.Message, 0, len(s.history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: s.systemPrompt})
	msgs = append(msgs, s.history...)

	start := time.Now()
	reply, err := s.gateway.Complete(ctx, llm.Request{
		Messages:    msgs,
		MaxTokens:   s.params.MaxTokens,
		Temperature: s.params.Temperature,
	})
	if err != nil {
		s.logger.Error("completion failed", "err", err, "history_len", len(s.history))
		return "", fmt.Errorf("%w: %w", ErrGateway, err)
	}

	s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: reply})
	s.logger.Debug("completion appended",
		"history_len", len(s.history),
		"reply_len", len(reply),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}

func (s *Session) lastAssistant() (string, bool) {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == llm.RoleAssistant {
			return s.history[i].Content, true
		}
	}
	return "", false
}
