package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ragbot/internal/domain"
	"ragbot/internal/vectorstore/memory"
)

// Loader hands out the current index, or nil when none exists.
type Loader interface {
	Load(ctx context.Context) (*memory.Storage, error)
}

type Options struct {
	FetchK       int
	Diversity    float64
	EmbedTimeout time.Duration
}

// Result is what a search found: the ranked chunks and the context string
// built from them.
type Result struct {
	Chunks  []domain.SearchResult
	Context string
}

type Retriever struct {
	index        Loader
	embedder     domain.Embedder
	fetchK       int
	diversity    float64
	embedTimeout time.Duration
}

func New(index Loader, embedder domain.Embedder, opts Options) *Retriever {
	if opts.FetchK <= 0 {
		opts.FetchK = memory.DefaultFetchK
	}
	if opts.Diversity < 0 || opts.Diversity > 1 {
		opts.Diversity = memory.DefaultDiversity
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 30 * time.Second
	}
	return &Retriever{
		index:        index,
		embedder:     embedder,
		fetchK:       opts.FetchK,
		diversity:    opts.Diversity,
		embedTimeout: opts.EmbedTimeout,
	}
}

// Search returns up to k chunks for query by maximal marginal relevance. It
// fails with domain.ErrNoIndex before embedding anything when no index
// exists. A query that embeds to the zero vector is ranked lexically.
func (r *Retriever) Search(ctx context.Context, query string, k int) (Result, error) {
	store, err := r.index.Load(ctx)
	if err != nil {
		return Result{}, err
	}
	if store == nil {
		return Result{}, domain.ErrNoIndex
	}

	ectx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()
	vec, err := r.embedder.Embed(ectx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}

	var hits []domain.SearchResult
	if isZero(vec) {
		hits = lexicalSearch(store.Chunks(), query, k)
	} else {
		hits = store.SearchMMR(vec, k, r.fetchK, r.diversity)
	}
	return Result{Chunks: hits, Context: BuildContext(hits)}, nil
}

// BuildContext joins trimmed chunk texts with newlines in the given order.
func BuildContext(hits []domain.SearchResult) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, strings.TrimSpace(h.Chunk.Text))
	}
	return strings.Join(parts, "\n")
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
