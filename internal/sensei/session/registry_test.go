package session

import (
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/sensei/internal/sensei/llm"
)

func newTestRegistry(idle time.Duration) (*Registry, *int) {
	created := 0
	r := NewRegistry(func(key string) *Session {
		created++
		return New(Deps{Gateway: llm.NewMock()}, Options{ID: key})
	}, idle)
	return r, &created
}

func TestRegistry_OneSessionPerKey(t *testing.T) {
	r, created := newTestRegistry(time.Hour)

	var first, again, other *Session
	_ = r.Do(Key("!room", "@alice"), func(s *Session) error { first = s; return nil })
	_ = r.Do(Key("!room", "@alice"), func(s *Session) error { again = s; return nil })
	_ = r.Do(Key("!room", "@bob"), func(s *Session) error { other = s; return nil })

	if first != again {
		t.Error("same key should reuse the session")
	}
	if first == other {
		t.Error("different senders must get different sessions")
	}
	if *created != 2 || r.Len() != 2 {
		t.Errorf("expected 2 sessions, created=%d len=%d", *created, r.Len())
	}
}

func TestRegistry_SerialisesSameKey(t *testing.T) {
	r, _ := newTestRegistry(time.Hour)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Do("k", func(*Session) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected calls on one key to be serialised, saw %d concurrent", maxSeen)
	}
}

func TestRegistry_EvictIdle(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.nowFunc = func() time.Time { return now }

	_ = r.Do("old", func(*Session) error { return nil })
	now = now.Add(2 * time.Minute)
	_ = r.Do("fresh", func(*Session) error { return nil })

	if n := r.EvictIdle(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", r.Len())
	}
}
