package memory

import (
	"errors"
	"math"
	"sort"
	"sync"

	"ragbot/internal/domain"
)

// Defaults for maximal marginal relevance search.
const (
	DefaultFetchK    = 20
	DefaultDiversity = 0.5
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// The index builds one per rebuild and never mutates it after publishing.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	norms     []float64
	chunks    []domain.Chunk
}

func NewStorage(dimension int) (*Storage, error) {
	if dimension <= 0 {
		return nil, errors.New("invalid dimension")
	}
	return &Storage{dimension: dimension}, nil
}

func (s *Storage) Dimension() int { return s.dimension }

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Chunks returns the stored chunks in insertion order.
func (s *Storage) Chunks() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks...)
}

func (s *Storage) Upsert(chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for _, v := range vectors {
		s.norms = append(s.norms, norm(v))
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search returns the topK chunks by cosine similarity, best first.
func (s *Storage) Search(vector []float64, topK int) []domain.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	scores := s.scores(vector)
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results
}

// SearchMMR selects k chunks by maximal marginal relevance among the fetchK
// most similar ones. Each step picks the candidate maximizing
//
//	(1-diversity)*sim(query, c) - diversity*max sim(c, selected)
//
// so diversity 0 is plain similarity ranking. Results are in selection order
// and carry their query similarity as Score. An empty store returns nil.
func (s *Storage) SearchMMR(vector []float64, k, fetchK int, diversity float64) []domain.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.chunks) == 0 {
		return nil
	}
	if fetchK < k {
		fetchK = k
	}
	if diversity < 0 {
		diversity = 0
	}
	if diversity > 1 {
		diversity = 1
	}
	scores := s.scores(vector)
	candidates := argsortDesc(scores)
	if fetchK < len(candidates) {
		candidates = candidates[:fetchK]
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	// redundancy[i] is the max similarity of candidate i to anything selected.
	redundancy := make([]float64, len(candidates))
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}
	taken := make([]bool, len(candidates))
	results := make([]domain.SearchResult, 0, k)
	for len(results) < k {
		best, bestScore := -1, math.Inf(-1)
		for i, j := range candidates {
			if taken[i] {
				continue
			}
			score := scores[j]
			if len(results) > 0 {
				score = (1-diversity)*scores[j] - diversity*redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		taken[best] = true
		picked := candidates[best]
		results = append(results, domain.SearchResult{Chunk: s.chunks[picked], Score: scores[picked]})
		for i, j := range candidates {
			if taken[i] {
				continue
			}
			if sim := s.cosine(j, picked); sim > redundancy[i] {
				redundancy[i] = sim
			}
		}
	}
	return results
}

func (s *Storage) scores(vector []float64) []float64 {
	qn := norm(vector)
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		if qn == 0 || s.norms[i] == 0 {
			continue
		}
		scores[i] = dot(s.vectors[i], vector) / (qn * s.norms[i])
	}
	return scores
}

func (s *Storage) cosine(a, b int) float64 {
	if s.norms[a] == 0 || s.norms[b] == 0 {
		return 0
	}
	return dot(s.vectors[a], s.vectors[b]) / (s.norms[a] * s.norms[b])
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 { return math.Sqrt(dot(v, v)) }

// argsortDesc orders indexes by descending value; ties keep chunk order.
func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
