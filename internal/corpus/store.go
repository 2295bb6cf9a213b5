// Package corpus holds snippets together with their embeddings and the vector index built
// over them. Position i in the store, the embedding list and the index always refer to the
// same snippet.
package corpus

import "github.com/hyperjump/minaoshi/internal/models"

// SnippetStore is an append-only ordered sequence of snippets.
type SnippetStore struct {
	snippets []models.Snippet
}

// NewSnippetStore returns a store holding a copy of snippets.
func NewSnippetStore(snippets []models.Snippet) *SnippetStore {
	s := &SnippetStore{}
	s.append(snippets)
	return s
}

// Len returns the number of snippets.
func (s *SnippetStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.snippets)
}

// Get returns the snippet at position i. ok is false when i is out of range.
func (s *SnippetStore) Get(i int) (snippet models.Snippet, ok bool) {
	if s == nil || i < 0 || i >= len(s.snippets) {
		return models.Snippet{}, false
	}
	return s.snippets[i], true
}

// All returns a copy of every snippet in position order.
func (s *SnippetStore) All() []models.Snippet {
	if s == nil {
		return nil
	}
	out := make([]models.Snippet, len(s.snippets))
	copy(out, s.snippets)
	return out
}

func (s *SnippetStore) append(snippets []models.Snippet) {
	s.snippets = append(s.snippets, snippets...)
}
