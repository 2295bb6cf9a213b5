package corpus

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/minaoshi/internal/models"
	"github.com/hyperjump/minaoshi/internal/vector"
)

// Source is an index paired with the store its positions refer to.
type Source struct {
	Index vector.VectorIndex
	Store *SnippetStore
}

// Empty reports whether the source has nothing to search.
func (s Source) Empty() bool {
	return s.Index == nil || s.Store == nil || s.Index.Size() == 0 || s.Store.Len() == 0
}

// Corpus owns a snippet store, its embeddings and the index over them.
// A Corpus that exists is always aligned.
type Corpus struct {
	name       string
	store      *SnippetStore
	embeddings [][]float32
	index      vector.VectorIndex
	mu         sync.RWMutex
}

// New wraps already-built parts and checks they agree. The index must already contain the
// embeddings in the same order as snippets.
func New(name string, snippets []models.Snippet, embeddings [][]float32, index vector.VectorIndex) (*Corpus, error) {
	if index == nil {
		return nil, fmt.Errorf("corpus %q: index is nil", name)
	}
	if err := Validate(index.Size(), len(embeddings), len(snippets)); err != nil {
		return nil, err
	}
	for i, e := range embeddings {
		if len(e) != index.Dimensions() {
			return nil, &models.CorruptionError{
				IndexSize:  index.Size(),
				Embeddings: len(embeddings),
				Snippets:   len(snippets),
				Reason:     fmt.Sprintf("embedding %d has dimension %d, index has %d", i, len(e), index.Dimensions()),
			}
		}
	}
	return &Corpus{
		name:       name,
		store:      NewSnippetStore(snippets),
		embeddings: copyVectors(embeddings),
		index:      index,
	}, nil
}

// Validate returns a *models.CorruptionError unless all three counts are equal.
func Validate(indexSize, embeddings, snippets int) error {
	if indexSize == embeddings && embeddings == snippets {
		return nil
	}
	return &models.CorruptionError{IndexSize: indexSize, Embeddings: embeddings, Snippets: snippets}
}

// CheckDimensions returns a *models.CorruptionError when c does not hold vectors of the given
// dimension, for example a corpus built with a different embedding model.
func CheckDimensions(c *Corpus, dimensions int) error {
	if c.Dimensions() == dimensions {
		return nil
	}
	size := c.Size()
	return &models.CorruptionError{
		IndexSize:  c.index.Size(),
		Embeddings: size,
		Snippets:   size,
		Reason:     fmt.Sprintf("corpus dimensions %d, embedder dimensions %d", c.Dimensions(), dimensions),
	}
}

// NewEmpty creates an empty corpus backed by a fresh index of the given type.
func NewEmpty(name, indexType string, dimensions int) (*Corpus, error) {
	index, err := vector.NewVectorIndex(indexType, dimensions)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Corpus{name: name, store: &SnippetStore{}, index: index}, nil
}

// Build creates a corpus from snippets and their embeddings.
func Build(ctx context.Context, name, indexType string, dimensions int, snippets []models.Snippet, embeddings [][]float32) (*Corpus, error) {
	c, err := NewEmpty(name, indexType, dimensions)
	if err != nil {
		return nil, err
	}
	if err := c.Append(ctx, snippets, embeddings); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Append adds snippets and their embeddings at the end of the corpus. On error nothing is added.
func (c *Corpus) Append(ctx context.Context, snippets []models.Snippet, embeddings [][]float32) error {
	if len(snippets) != len(embeddings) {
		return fmt.Errorf("append: %d snippets but %d embeddings", len(snippets), len(embeddings))
	}
	if len(snippets) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.index.Add(ctx, embeddings); err != nil {
		return fmt.Errorf("append to index: %w", err)
	}
	c.store.append(snippets)
	c.embeddings = append(c.embeddings, copyVectors(embeddings)...)
	return nil
}

// Source returns the index/store pair used for retrieval.
func (c *Corpus) Source() Source {
	if c == nil {
		return Source{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Source{Index: c.index, Store: c.store}
}

// Name returns the corpus identifier.
func (c *Corpus) Name() string { return c.name }

// Size returns the number of snippets.
func (c *Corpus) Size() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

// Dimensions returns the embedding dimension.
func (c *Corpus) Dimensions() int { return c.index.Dimensions() }

// IndexType returns the type of the underlying vector index.
func (c *Corpus) IndexType() string { return c.index.Type() }

// Index returns the underlying vector index.
func (c *Corpus) Index() vector.VectorIndex { return c.index }

// Snippets returns a copy of all snippets in position order.
func (c *Corpus) Snippets() []models.Snippet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.All()
}

// Embeddings returns a copy of all embeddings in position order.
func (c *Corpus) Embeddings() [][]float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyVectors(c.embeddings)
}

// Close releases the index.
func (c *Corpus) Close() error {
	if c == nil || c.index == nil {
		return nil
	}
	return c.index.Close()
}

func copyVectors(in [][]float32) [][]float32 {
	out := make([][]float32, len(in))
	for i, v := range in {
		cp := make([]float32, len(v))
		copy(cp, v)
		out[i] = cp
	}
	return out
}
