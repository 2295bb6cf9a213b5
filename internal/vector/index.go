// Package vector provides exact nearest-neighbour vector indices keyed by insertion position.
package vector

import (
	"context"
	"io"
)

// VectorIndex stores fixed-dimension vectors at monotonically increasing positions and
// answers k-nearest-neighbour queries by Euclidean distance.
type VectorIndex interface {
	// Add appends vectors; the first gets position Size() before the call.
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns up to k results ordered by ascending distance.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	// Encode writes all stored vectors to w in the portable index format.
	Encode(w io.Writer) error
	// Decode replaces the index contents with vectors read from r.
	Decode(r io.Reader) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single nearest-neighbour hit.
type VectorResult struct {
	Position int
	Distance float64 // Euclidean (L2) distance to the query
}
