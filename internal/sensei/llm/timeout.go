package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout bounds every Complete call on g by d. Expiry of the bound is
// reported as ErrTimeout; cancellation of the caller's context is passed
// through unchanged.
func WithTimeout(g Gateway, d time.Duration) Gateway {
	return &timeoutGateway{next: g, timeout: d}
}

func (t *timeoutGateway) Complete(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.Complete(callCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s: %v", ErrTimeout, t.timeout, err)
	}
	return out, err
}
