package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pinecone-io/go-pinecone/v3/pinecone"
)

func TestNewID_UniqueAndTimeOrdered(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for range 1000 {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		u, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("not a uuid: %v", err)
		}
		if u.Version() != 7 {
			t.Fatalf("expected UUIDv7, got v%d", u.Version())
		}
		if prev != "" && id < prev {
			t.Fatalf("ids not ordered: %s after %s", id, prev)
		}
		prev = id
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	if ErrorCode(nil) != CodeOK {
		t.Error("nil should map to ok")
	}
	if ErrorCode(errors.New("x")) != CodeUnavailable {
		t.Error("untyped error should map to unavailable")
	}
	wrapped := errors.Join(errors.New("ctx"), storeErr(CodeDecode, "query", errors.New("bad")))
	if ErrorCode(wrapped) != CodeDecode {
		t.Errorf("expected decode, got %q", ErrorCode(wrapped))
	}
}

type fakeRecorder struct{ ops, codes []string }

func (f *fakeRecorder) ObserveMemory(op, code string, _ time.Duration) {
	f.ops = append(f.ops, op)
	f.codes = append(f.codes, code)
}

type fakeStore struct {
	insertErr error
	results   []Insight
	queryErr  error
}

func (f *fakeStore) Insert(context.Context, string, Metadata) (string, error) {
	return "id-1", f.insertErr
}

func (f *fakeStore) QueryTopK(context.Context, string, int) ([]Insight, error) {
	return f.results, f.queryErr
}

func TestInstrument_Codes(t *testing.T) {
	rec := &fakeRecorder{}
	ctx := context.Background()

	_, _ = Instrument(&fakeStore{}, rec, nil).Insert(ctx, "d", Metadata{})
	_, _ = Instrument(&fakeStore{}, rec, nil).QueryTopK(ctx, "p", 1)
	_, _ = Instrument(&fakeStore{results: []Insight{{ID: "a"}}}, rec, nil).QueryTopK(ctx, "p", 1)
	_, _ = Instrument(&fakeStore{queryErr: storeErr(CodeQuery, "query", errors.New("down"))}, rec, nil).QueryTopK(ctx, "p", 1)
	_, _ = Instrument(&fakeStore{insertErr: errors.New("conn refused")}, rec, nil).Insert(ctx, "d", Metadata{})

	wantOps := []string{"insert", "query", "query", "query", "insert"}
	wantCodes := []string{CodeOK, CodeEmpty, CodeOK, CodeQuery, CodeUnavailable}
	for i := range wantOps {
		if rec.ops[i] != wantOps[i] || rec.codes[i] != wantCodes[i] {
			t.Errorf("observation %d: got (%s, %s), want (%s, %s)", i, rec.ops[i], rec.codes[i], wantOps[i], wantCodes[i])
		}
	}
}

func TestNewPGVectorStore_RequiresEmbedder(t *testing.T) {
	if _, err := NewPGVectorStore(nil, nil, "", nil); !errors.Is(err, ErrNoEmbedder) {
		t.Errorf("expected ErrNoEmbedder, got %v", err)
	}
	if _, err := NewPGVectorStore(nil, NoopEmbedder{}, "", nil); !errors.Is(err, ErrNoEmbedder) {
		t.Errorf("expected ErrNoEmbedder for noop, got %v", err)
	}
}

type fakeIndex struct {
	upserted []*pinecone.Vector
	resp     *pinecone.QueryVectorsResponse
	req      *pinecone.QueryByVectorValuesRequest
	err      error
}

func (f *fakeIndex) UpsertVectors(_ context.Context, in []*pinecone.Vector) (uint32, error) {
	f.upserted = append(f.upserted, in...)
	return uint32(len(in)), f.err
}

func (f *fakeIndex) QueryByVectorValues(_ context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error) {
	f.req = in
	return f.resp, f.err
}

func TestPineconeStore_InsertCarriesDocumentInMetadata(t *testing.T) {
	idx := &fakeIndex{}
	s := newPineconeStore(idx, keywordEmbedder{vocab: []string{"bias"}}, nil)

	id, err := s.Insert(context.Background(), "bias is systematic error", Metadata{Timestamp: 1700000000, DepthLevel: "research"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(idx.upserted) != 1 || idx.upserted[0].Id != id {
		t.Fatalf("expected one upsert with id %s, got %+v", id, idx.upserted)
	}
	meta := idx.upserted[0].Metadata.AsMap()
	if meta["document"] != "bias is systematic error" || meta["depth_level"] != "research" {
		t.Errorf("unexpected metadata: %v", meta)
	}
	if meta["timestamp"] != float64(1700000000) {
		t.Errorf("unexpected timestamp: %v", meta["timestamp"])
	}
}

func TestPineconeStore_QueryDecodesMatches(t *testing.T) {
	idx := &fakeIndex{}
	s := newPineconeStore(idx, keywordEmbedder{vocab: []string{"bias"}}, nil)
	ctx := context.Background()
	if _, err := s.Insert(ctx, "bias is systematic error", Metadata{Timestamp: 7, DepthLevel: "exam"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	stored := idx.upserted[0]
	idx.resp = &pinecone.QueryVectorsResponse{Matches: []*pinecone.ScoredVector{
		{Vector: stored, Score: 0.93},
		{Vector: &pinecone.Vector{Id: "no-meta"}},
	}}

	got, err := s.QueryTopK(ctx, "bias", 1)
	if err != nil {
		t.Fatalf("QueryTopK: %v", err)
	}
	if idx.req.TopK != 1 || !idx.req.IncludeMetadata {
		t.Errorf("unexpected request: %+v", idx.req)
	}
	if len(got) != 1 || got[0].Document != "bias is systematic error" || got[0].Metadata.Timestamp != 7 {
		t.Fatalf("unexpected results: %+v", got)
	}
	if math.Abs(got[0].Score-0.93) > 1e-6 {
		t.Errorf("unexpected score %f", got[0].Score)
	}
}

func TestPineconeStore_QueryErrorIsCoded(t *testing.T) {
	s := newPineconeStore(&fakeIndex{err: errors.New("503")}, keywordEmbedder{vocab: []string{"x"}}, nil)
	if _, err := s.QueryTopK(context.Background(), "x", 1); ErrorCode(err) != CodeQuery {
		t.Fatalf("expected query code, got %v", err)
	}
}
