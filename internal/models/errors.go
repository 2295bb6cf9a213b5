package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by retrieval and review. Check with errors.Is.
var (
	ErrEmbeddingFailure     = errors.New("embedding failure")
	ErrIndexCorruption      = errors.New("index corruption")
	ErrReviewServiceFailure = errors.New("review service failure")
	ErrRepoUnavailable      = errors.New("repository unavailable")
	ErrInvalidRequest       = errors.New("invalid request")
)

// CorruptionError reports a persisted corpus whose parts disagree on their length.
type CorruptionError struct {
	IndexSize  int
	Embeddings int
	Snippets   int
	Reason     string
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("index corruption: index=%d embeddings=%d snippets=%d", e.IndexSize, e.Embeddings, e.Snippets)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is reports ErrIndexCorruption as the kind of this error.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrIndexCorruption
}
