package llm

import (
	"context"
	"errors"
	"time"
)

// Recorder receives one observation per completion call.
type Recorder interface {
	ObserveGateway(provider, outcome string, elapsed time.Duration)
}

// Outcome labels reported to a Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeTimeout     = "timeout"
	OutcomeEmpty       = "empty"
	OutcomeError       = "error"
)

type instrumented struct {
	next     Gateway
	provider string
	rec      Recorder
}

// Instrument reports the latency and outcome of every call on g to rec.
// A nil rec returns g unchanged.
func Instrument(g Gateway, provider string, rec Recorder) Gateway {
	if rec == nil {
		return g
	}
	return &instrumented{next: g, provider: provider, rec: rec}
}

func (i *instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := i.next.Complete(ctx, req)
	i.rec.ObserveGateway(i.provider, Outcome(err), time.Since(start))
	return out, err
}

// Outcome classifies a Complete error into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrRateLimit):
		return OutcomeRateLimited
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, ErrEmptyCompletion):
		return OutcomeEmpty
	default:
		return OutcomeError
	}
}
