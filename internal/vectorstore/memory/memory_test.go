package memory

import (
	"testing"

	"ragbot/internal/domain"
)

func newStore(t *testing.T, vectors ...[]float64) *Storage {
	t.Helper()
	s, err := NewStorage(len(vectors[0]))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	chunks := make([]domain.Chunk, len(vectors))
	for i := range chunks {
		chunks[i] = domain.Chunk{Index: i, Text: string(rune('a' + i))}
	}
	if err := s.Upsert(chunks, vectors); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return s
}

func indexes(rs []domain.SearchResult) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Chunk.Index
	}
	return out
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewStorage_InvalidDimension(t *testing.T) {
	if _, err := NewStorage(0); err == nil {
		t.Fatalf("expected error for zero dimension")
	}
}

func TestUpsert_Validation(t *testing.T) {
	s, _ := NewStorage(2)
	if err := s.Upsert([]domain.Chunk{{}}, nil); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	if err := s.Upsert([]domain.Chunk{{}}, [][]float64{{1, 2, 3}}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
	if s.Len() != 0 {
		t.Fatalf("failed upsert must not add chunks")
	}
}

func TestSearch_CosineOrder(t *testing.T) {
	s := newStore(t, []float64{0, 1}, []float64{1, 0}, []float64{1, 1})
	got := indexes(s.Search([]float64{2, 0}, 3))
	if want := []int{1, 2, 0}; !equal(got, want) {
		t.Fatalf("Search() order = %v, want %v", got, want)
	}
}

func TestSearchMMR(t *testing.T) {
	s := newStore(t,
		[]float64{1, 0, 0},
		[]float64{1, 0, 0},
		[]float64{0.6, 0.8, 0},
		[]float64{0, 0, 1},
	)
	query := []float64{1, 0.3, 0}
	tests := []struct {
		name      string
		k, fetchK int
		diversity float64
		want      []int
	}{
		{"no diversity ranks by similarity", 2, 20, 0, []int{0, 1}},
		{"diversity skips the duplicate", 2, 20, 0.5, []int{0, 2}},
		{"fetchK below k is raised", 2, 1, 0.5, []int{0, 2}},
		{"k larger than store", 10, 20, 0.5, []int{0, 2, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := indexes(s.SearchMMR(query, tt.k, tt.fetchK, tt.diversity))
			if !equal(got, tt.want) {
				t.Errorf("SearchMMR() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchMMR_EmptyStore(t *testing.T) {
	s, _ := NewStorage(3)
	if got := s.SearchMMR([]float64{1, 0, 0}, 4, 20, 0.5); len(got) != 0 {
		t.Fatalf("expected no results from empty store, got %v", got)
	}
}

func TestSearchMMR_ZeroQuery(t *testing.T) {
	s := newStore(t, []float64{1, 0}, []float64{0, 1})
	got := s.SearchMMR([]float64{0, 0}, 2, 20, 0.5)
	if len(got) != 2 {
		t.Fatalf("expected 2 results for zero query, got %d", len(got))
	}
	for _, r := range got {
		if r.Score != 0 {
			t.Fatalf("zero query must score 0, got %v", r.Score)
		}
	}
}
