// Package storage persists a corpus as one SQLite file and loads it back with validation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/minaoshi/internal/corpus"
)

// ErrCorpusNotFound is returned by Load when nothing has been saved yet.
var ErrCorpusNotFound = errors.New("no corpus saved")

// CorpusStore saves and loads a corpus.
type CorpusStore interface {
	// Save replaces the stored corpus.
	Save(ctx context.Context, c *corpus.Corpus) error
	// Load returns the stored corpus, or a *models.CorruptionError if its parts disagree.
	Load(ctx context.Context, indexType string) (*corpus.Corpus, error)
	// Stats reports row counts without loading the corpus.
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats summarizes a stored corpus.
type Stats struct {
	Name       string    `json:"name"`
	Dimensions int       `json:"dimensions"`
	IndexType  string    `json:"index_type"`
	IndexSize  int       `json:"index_size"`
	Embeddings int       `json:"embeddings"`
	Snippets   int       `json:"snippets"`
	Repos      int       `json:"repos"`
	CreatedAt  time.Time `json:"created_at"`
}
