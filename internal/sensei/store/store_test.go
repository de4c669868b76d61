package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bdobrica/sensei/internal/sensei/memory"
	"github.com/bdobrica/sensei/internal/sensei/store"
)

func newTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensei-test.db")
	s, err := store.New(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestNew_AppliesAllMigrations(t *testing.T) {
	s, _ := newTestStore(t)
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("schema version: got %d, want 2", v)
	}
	for _, table := range []string{"insights", "matrix_sync_state"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	ms := memory.NewSQLiteStore(s.DB(), nil, "", nil)
	if _, err := ms.Insert(ctx, "kept across restarts", memory.Metadata{Timestamp: 1, DepthLevel: "exam"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s.Close()

	reopened, err := store.New(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := memory.NewSQLiteStore(reopened.DB(), nil, "", nil).QueryTopK(ctx, "anything", 1)
	if err != nil {
		t.Fatalf("QueryTopK: %v", err)
	}
	if len(got) != 1 || got[0].Document != "kept across restarts" {
		t.Fatalf("insight did not survive reopen: %+v", got)
	}
}

func TestPing(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
