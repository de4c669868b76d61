package commands

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRatePerMinute bounds model calls per sender.
const DefaultRatePerMinute = 20

// RateLimiter throttles model calls per sender with a token bucket that
// refills at perMinute tokens per minute and holds at most perMinute.
// A zero or negative limit disables throttling.
//
// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]*bucket
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		buckets:   make(map[string]*bucket),
		now:       time.Now,
	}
}

// Allow consumes one token for sender and reports whether the call may
// proceed.
func (r *RateLimiter) Allow(sender string) bool {
	if r == nil || r.perMinute <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[sender]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.perMinute)), r.perMinute)}
		r.buckets[sender] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Prune forgets senders idle for longer than maxIdle. An idle sender's
// bucket is full again, so forgetting it changes nothing.
func (r *RateLimiter) Prune(maxIdle time.Duration) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxIdle)
	n := 0
	for k, b := range r.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(r.buckets, k)
			n++
		}
	}
	return n
}
