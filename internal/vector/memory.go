// Package vector provides an in-memory exact L2 index, the default for repository-sized corpora.
package vector

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force Euclidean search.
// Safe for concurrent readers; writers take the lock exclusively.
type MemoryIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends vectors. Either all vectors are added or none.
func (m *MemoryIndex) Add(ctx context.Context, vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != m.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vec := range vectors {
		cp := make([]float32, m.dimensions)
		copy(cp, vec)
		m.vectors = append(m.vectors, cp)
	}
	return nil
}

// Search returns the k closest vectors by Euclidean distance, ascending.
// Equal distances are ordered by position.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.vectors) == 0 {
		return nil, nil
	}
	type scored struct {
		pos  int
		dist float64
	}
	scores := make([]scored, len(m.vectors))
	for i, vec := range m.vectors {
		scores[i] = scored{pos: i, dist: SquaredL2(query, vec)}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].dist != scores[j].dist {
			return scores[i].dist < scores[j].dist
		}
		return scores[i].pos < scores[j].pos
	})
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]VectorResult, k)
	for i := 0; i < k; i++ {
		result[i] = VectorResult{Position: scores[i].pos, Distance: math.Sqrt(scores[i].dist)}
	}
	return result, nil
}

// Encode writes the index in the portable format.
func (m *MemoryIndex) Encode(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return encodeVectors(w, m.dimensions, m.vectors)
}

// Decode reads the index from r and replaces the in-memory contents. Dimensions must match.
func (m *MemoryIndex) Decode(r io.Reader) error {
	vectors, err := decodeVectors(r, m.dimensions)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = vectors
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
