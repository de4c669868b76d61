package session

import "errors"

// Precondition errors. They are reported to the student as informational
// notices; none of them mutates the session or touches the gateway or the
// memory store.
var (
	ErrNotStarted       = errors.New("session: no depth level selected yet")
	ErrUnknownDepth     = errors.New("session: unknown depth level")
	ErrEmptyMessage     = errors.New("session: message is empty")
	ErrNothingToReview  = errors.New("session: nothing to review yet")
	ErrNothingToSave    = errors.New("session: no assistant response to save")
	ErrNotEnoughContext = errors.New("session: not enough context to search memory")
	ErrMemoryDisabled   = errors.New("session: memory store is disabled")
	ErrNothingFound     = errors.New("session: no related memory found")
)

// Failures of external collaborators.
var (
	// ErrGateway wraps a failed completion. The user message that triggered
	// it stays in history; no assistant reply is appended.
	ErrGateway = errors.New("session: language model request failed")

	// ErrStore wraps a failed insight save.
	ErrStore = errors.New("session: saving to memory failed")
)

var preconditions = []error{
	ErrNotStarted,
	ErrUnknownDepth,
	ErrEmptyMessage,
	ErrNothingToReview,
	ErrNothingToSave,
	ErrNotEnoughContext,
	ErrMemoryDisabled,
	ErrNothingFound,
}

// IsPrecondition reports whether err is an informational precondition
// rather than a collaborator failure.
func IsPrecondition(err error) bool {
	for _, p := range preconditions {
		if errors.Is(err, p) {
			return true
		}
	}
	return false
}
