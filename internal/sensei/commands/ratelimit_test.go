package commands

import (
	"testing"
	"time"
)

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	rl := NewRateLimiter(3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := range 3 {
		if !rl.Allow("@alice") {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if rl.Allow("@alice") {
		t.Fatal("fourth call in the same instant should be throttled")
	}
	if !rl.Allow("@bob") {
		t.Fatal("other senders have their own bucket")
	}

	now = now.Add(20 * time.Second)
	if !rl.Allow("@alice") {
		t.Fatal("one token should have refilled after 20s at 3/min")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for range 100 {
		if !rl.Allow("@alice") {
			t.Fatal("zero limit disables throttling")
		}
	}
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("@alice") {
		t.Fatal("nil limiter allows everything")
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(5)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.Allow("@old")
	now = now.Add(time.Hour)
	rl.Allow("@new")

	if n := rl.Prune(10 * time.Minute); n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	if _, ok := rl.buckets["@new"]; !ok {
		t.Fatal("recent sender should be kept")
	}
}
