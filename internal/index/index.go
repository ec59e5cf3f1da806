package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ragbot/internal/domain"
	"ragbot/internal/logger"
	"ragbot/internal/vectorstore"
	"ragbot/internal/vectorstore/memory"
	"ragbot/internal/vectorstore/sqlite"
)

// FileName is the live index file inside the index directory.
const FileName = "index.db"

// ProgressFunc is told how many chunks have been embedded so far.
type ProgressFunc func(done, total int)

type Options struct {
	Workers      int
	EmbedTimeout time.Duration
	Logger       *logger.Logger
}

// Index is the single-slot knowledge base: at most one persisted index exists
// and Rebuild swaps it wholesale. Rebuild and Reset are serialized, so the
// caller that takes the write lock last decides the final state. Readers get
// an immutable store and search it without holding locks.
//
// Other processes may share the directory. Load compares the file on disk with
// the one live was read from and follows their rebuilds and resets.
type Index struct {
	dir          string
	embedder     domain.Embedder
	workers      int
	embedTimeout time.Duration
	log          *logger.Logger

	writeMu sync.Mutex

	mu     sync.RWMutex
	live   *memory.Storage
	loaded os.FileInfo // index file live was read from, nil when live is nil
}

func New(dir string, embedder domain.Embedder, opts Options) (*Index, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("index dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create index dir: %w", domain.ErrStorage, err)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Index{
		dir:          dir,
		embedder:     embedder,
		workers:      opts.Workers,
		embedTimeout: opts.EmbedTimeout,
		log:          opts.Logger.With("component", "index"),
	}, nil
}

func (ix *Index) path() string { return filepath.Join(ix.dir, FileName) }

// Rebuild embeds every chunk and replaces the persisted index. On any failure
// the previous index stays live and loadable. Zero chunks is a valid, empty
// index.
func (ix *Index) Rebuild(ctx context.Context, chunks []domain.Chunk, progress ProgressFunc) (*memory.Storage, error) {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	started := time.Now()
	vectors, err := ix.embedAll(ctx, chunks, progress)
	if err != nil {
		return nil, err
	}
	dim := ix.embedder.Dimension()
	store, err := memory.NewStorage(dim)
	if err != nil {
		return nil, fmt.Errorf("%w: embedder dimension %d", domain.ErrModelUnavailable, dim)
	}
	if err := store.Upsert(chunks, vectors); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create index dir: %w", domain.ErrStorage, err)
	}
	tmp := filepath.Join(ix.dir, "index-"+uuid.NewString()+".tmp")
	snap := vectorstore.Snapshot{
		Manifest: vectorstore.Manifest{
			Model:     ix.embedder.Identity(),
			Dimension: dim,
			Count:     len(chunks),
			CreatedAt: time.Now().UTC(),
		},
		Chunks:  chunks,
		Vectors: vectors,
	}
	if err := sqlite.Write(ctx, tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("%w: write index: %w", domain.ErrStorage, err)
	}

	ix.mu.Lock()
	if err := os.Rename(tmp, ix.path()); err != nil {
		ix.mu.Unlock()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("%w: publish index: %w", domain.ErrStorage, err)
	}
	ix.live = store
	ix.loaded, _ = os.Stat(ix.path())
	ix.mu.Unlock()

	ix.log.Info("index rebuilt", "chunks", len(chunks), "model", snap.Manifest.Model, "took", time.Since(started))
	return store, nil
}

func (ix *Index) embedAll(ctx context.Context, chunks []domain.Chunk, progress ProgressFunc) ([][]float64, error) {
	vectors := make([][]float64, len(chunks))
	if len(chunks) == 0 {
		return vectors, nil
	}
	dim := ix.embedder.Dimension()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	var (
		done       int32
		progressMu sync.Mutex
	)
	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			ectx, cancel := context.WithTimeout(gctx, ix.embedTimeout)
			defer cancel()
			v, err := ix.embedder.Embed(ectx, ch.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", ch.Index, err)
			}
			if len(v) != dim {
				return fmt.Errorf("%w: chunk %d embedded to %d dimensions, want %d", domain.ErrModelUnavailable, ch.Index, len(v), dim)
			}
			vectors[i] = v
			if progress != nil {
				progressMu.Lock()
				progress(int(atomic.AddInt32(&done, 1)), len(chunks))
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Load returns the most recently persisted index. The file is read again
// whenever it was replaced or removed since the last call, by this process or
// another one. It returns (nil, nil) when no index exists and
// domain.ErrIndexIncompatible when the persisted index was built by a
// different embedder.
func (ix *Index) Load(ctx context.Context) (*memory.Storage, error) {
	fi, err := ix.stat()
	if err != nil {
		return nil, err
	}
	ix.mu.RLock()
	if ix.current(fi) {
		s := ix.live
		ix.mu.RUnlock()
		return s, nil
	}
	ix.mu.RUnlock()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if fi, err = ix.stat(); err != nil {
		return nil, err
	}
	if ix.current(fi) {
		return ix.live, nil
	}
	if fi == nil {
		ix.log.Info("index removed on disk")
		ix.live, ix.loaded = nil, nil
		return nil, nil
	}

	store, m, err := ix.read(ctx)
	if err != nil {
		if gone, serr := ix.stat(); serr == nil && gone == nil {
			// Reset by another process while reading.
			ix.live, ix.loaded = nil, nil
			return nil, nil
		}
		return nil, err
	}
	ix.live, ix.loaded = store, fi
	ix.log.Info("index loaded", "chunks", m.Count, "model", m.Model, "created_at", m.CreatedAt)
	return store, nil
}

// stat returns nil info when the index file does not exist.
func (ix *Index) stat() (os.FileInfo, error) {
	fi, err := os.Stat(ix.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat index: %w", domain.ErrStorage, err)
	}
	return fi, nil
}

// current reports whether live matches the index file described by fi.
// Callers hold mu.
func (ix *Index) current(fi os.FileInfo) bool {
	if fi == nil || ix.loaded == nil {
		return fi == nil && ix.live == nil
	}
	return os.SameFile(fi, ix.loaded) &&
		fi.Size() == ix.loaded.Size() &&
		fi.ModTime().Equal(ix.loaded.ModTime())
}

func (ix *Index) read(ctx context.Context) (*memory.Storage, vectorstore.Manifest, error) {
	m, err := sqlite.ReadManifest(ctx, ix.path())
	if err != nil {
		return nil, m, fmt.Errorf("%w: read index manifest: %w", domain.ErrStorage, err)
	}
	if !m.Compatible(ix.embedder.Identity(), ix.embedder.Dimension()) {
		return nil, m, fmt.Errorf("%w: index built with %s (%d dims), current embedder is %s (%d dims); reset and ingest again",
			domain.ErrIndexIncompatible, m.Model, m.Dimension, ix.embedder.Identity(), ix.embedder.Dimension())
	}
	snap, err := sqlite.Read(ctx, ix.path())
	if err != nil {
		return nil, m, fmt.Errorf("%w: read index: %w", domain.ErrStorage, err)
	}
	store, err := memory.NewStorage(m.Dimension)
	if err != nil {
		return nil, m, fmt.Errorf("%w: %w", domain.ErrIndexIncompatible, err)
	}
	if err := store.Upsert(snap.Chunks, snap.Vectors); err != nil {
		return nil, m, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	return store, m, nil
}

// Reset removes the index file and any temporary files left by interrupted
// rebuilds. Nothing else in the directory is touched. It reports whether an
// index existed and is a no-op on a pristine system.
func (ix *Index) Reset(ctx context.Context) (bool, error) {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	ix.mu.Lock()
	defer ix.mu.Unlock()

	existed := ix.live != nil
	if _, err := os.Stat(ix.path()); err == nil {
		existed = true
	}
	stale, err := filepath.Glob(filepath.Join(ix.dir, "index-*.tmp"))
	if err != nil {
		return false, fmt.Errorf("%w: list temporary files: %w", domain.ErrStorage, err)
	}
	for _, p := range append([]string{ix.path(), ix.path() + "-journal"}, stale...) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("%w: remove %s: %w", domain.ErrStorage, filepath.Base(p), err)
		}
	}
	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return false, fmt.Errorf("%w: recreate index dir: %w", domain.ErrStorage, err)
	}
	ix.live, ix.loaded = nil, nil
	if existed {
		ix.log.Info("index reset")
	}
	return existed, nil
}
