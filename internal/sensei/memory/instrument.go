package memory

import (
	"context"
	"log/slog"
	"time"
)

// Recorder receives one observation per store call.
type Recorder interface {
	ObserveMemory(op, code string, elapsed time.Duration)
}

type instrumentedStore struct {
	next   Store
	rec    Recorder
	logger *slog.Logger
}

// Instrument logs and records every call on s with an operation label and
// an error code. Callers that collapse failures into an empty result still
// leave a trace of the real outage here. A nil rec only logs.
func Instrument(s Store, rec Recorder, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumentedStore{next: s, rec: rec, logger: logger}
}

func (i *instrumentedStore) observe(ctx context.Context, op, code string, start time.Time, err error) {
	if i.rec != nil {
		i.rec.ObserveMemory(op, code, time.Since(start))
	}
	if err != nil {
		i.logger.WarnContext(ctx, "memory store call failed", "op", op, "code", code, "err", err)
	}
}

func (i *instrumentedStore) Insert(ctx context.Context, document string, md Metadata) (string, error) {
	start := time.Now()
	id, err := i.next.Insert(ctx, document, md)
	i.observe(ctx, "insert", ErrorCode(err), start, err)
	return id, err
}

func (i *instrumentedStore) QueryTopK(ctx context.Context, probe string, k int) ([]Insight, error) {
	start := time.Now()
	res, err := i.next.QueryTopK(ctx, probe, k)
	code := ErrorCode(err)
	if err == nil && len(res) == 0 {
		code = CodeEmpty
	}
	i.observe(ctx, "query", code, start, err)
	return res, err
}
