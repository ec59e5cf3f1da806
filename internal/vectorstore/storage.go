package vectorstore

import (
	"time"

	"ragbot/internal/domain"
)

// Manifest describes a persisted index so that a load with a different
// embedder can be refused instead of returning meaningless distances.
type Manifest struct {
	Model     string
	Dimension int
	Count     int
	CreatedAt time.Time
}

// Compatible reports whether vectors produced by an embedder with the given
// identity and dimension can be compared against this index.
func (m Manifest) Compatible(model string, dimension int) bool {
	return m.Model == model && m.Dimension == dimension
}

// Snapshot is a complete index: chunks and their vectors in chunk order.
type Snapshot struct {
	Manifest Manifest
	Chunks   []domain.Chunk
	Vectors  [][]float64
}
