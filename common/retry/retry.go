// Package retry runs an operation again with exponential backoff.
//
// Sensei never retries model or memory calls made on behalf of a chat action;
// retries are reserved for transport plumbing such as delivering a reply to a
// Matrix room or waiting for Postgres during startup.
//
//	err := retry.Do(ctx, retry.DefaultConfig, func(ctx context.Context) error {
//	    return client.SendMessage(ctx, room, text)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls the backoff schedule.
type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean a single attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; it doubles after
	// each failure up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig suits short network calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts run
// out, or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Debug("retry: attempt failed",
			"attempt", attempt, "max", cfg.MaxAttempts,
			"err", lastErr, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay = min(delay*2, cfg.MaxDelay)
	}

	return lastErr
}
