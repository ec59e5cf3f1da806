package retriever

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"ragbot/internal/domain"
	"ragbot/internal/embedding/hashing"
	"ragbot/internal/vectorstore/memory"
)

type stubLoader struct {
	store *memory.Storage
	err   error
}

func (s stubLoader) Load(context.Context) (*memory.Storage, error) { return s.store, s.err }

type countingEmbedder struct {
	*hashing.Embedder
	calls int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.Embedder.Embed(ctx, text)
}

func buildStore(t *testing.T, e domain.Embedder, texts ...string) *memory.Storage {
	t.Helper()
	s, err := memory.NewStorage(e.Dimension())
	if err != nil {
		t.Fatal(err)
	}
	chunks := make([]domain.Chunk, len(texts))
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Index: i, Text: text}
		vectors[i], _ = e.Embed(context.Background(), text)
	}
	if err := s.Upsert(chunks, vectors); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSearch_NoIndex(t *testing.T) {
	emb := &countingEmbedder{Embedder: hashing.NewEmbedder(64)}
	r := New(stubLoader{}, emb, Options{})
	_, err := r.Search(context.Background(), "anything", 4)
	if !errors.Is(err, domain.ErrNoIndex) {
		t.Fatalf("expected ErrNoIndex, got %v", err)
	}
	if emb.calls != 0 {
		t.Fatalf("query embedded %d times without an index", emb.calls)
	}
}

func TestSearch_LoadErrorPropagates(t *testing.T) {
	r := New(stubLoader{err: domain.ErrIndexIncompatible}, hashing.NewEmbedder(64), Options{})
	if _, err := r.Search(context.Background(), "q", 4); !errors.Is(err, domain.ErrIndexIncompatible) {
		t.Fatalf("expected ErrIndexIncompatible, got %v", err)
	}
}

func TestSearch_FindsRelevantChunk(t *testing.T) {
	emb := hashing.NewEmbedder(512)
	store := buildStore(t, emb,
		"  Venus has a dense sulfuric cloud layer.  ",
		"Mars has a thin CO2 atmosphere.\n",
		"Jupiter has a great red spot storm.",
		"Saturn rings are made of ice.",
	)
	res, err := New(stubLoader{store: store}, emb, Options{}).Search(context.Background(), "What is Mars's atmosphere made of?", 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(res.Chunks))
	}
	if res.Chunks[0].Chunk.Index != 1 {
		t.Fatalf("top chunk = %q, want the Mars sentence", res.Chunks[0].Chunk.Text)
	}
	if !strings.HasPrefix(res.Context, "Mars has a thin CO2 atmosphere.\n") {
		t.Fatalf("context does not start with the Mars sentence: %q", res.Context)
	}
	if strings.Contains(res.Context, "  ") {
		t.Fatalf("chunk text not trimmed: %q", res.Context)
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	store, _ := memory.NewStorage(64)
	res, err := New(stubLoader{store: store}, emb, Options{}).Search(context.Background(), "Mars", 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Chunks) != 0 || res.Context != "" {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestSearch_ZeroQueryFallsBackToLexical(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	store := buildStore(t, emb, "Bananas grow in bunches.", "So what is it, then?")
	res, err := New(stubLoader{store: store}, emb, Options{}).Search(context.Background(), "what is it?", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.Index != 1 {
		t.Fatalf("lexical fallback picked %+v", res.Chunks)
	}
}

func TestBuildContext(t *testing.T) {
	hits := []domain.SearchResult{
		{Chunk: domain.Chunk{Text: " second "}},
		{Chunk: domain.Chunk{Text: "first\n"}},
	}
	if got, want := BuildContext(hits), "second\nfirst"; got != want {
		t.Fatalf("BuildContext() = %q, want %q", got, want)
	}
	if got := BuildContext(nil); got != "" {
		t.Fatalf("BuildContext(nil) = %q", got)
	}
}

func TestOverlapOchiai(t *testing.T) {
	tests := []struct {
		query, text string
		want        float64
	}{
		{"a b", "a b", 1},
		{"a b", "c d", 0},
		{"a b c d", "a", 0.5},
		{"", "a", 0},
	}
	for _, tt := range tests {
		if got := overlapOchiai(toTokenSet(tt.query), tt.text); got != tt.want {
			t.Errorf("overlapOchiai(%q, %q) = %v, want %v", tt.query, tt.text, got, tt.want)
		}
	}
}
