// Package search implements dual-context retrieval: one query embedding searched against a
// request-local corpus and a shared global corpus.
package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/minaoshi/internal/corpus"
	"github.com/hyperjump/minaoshi/internal/embedding"
	"github.com/hyperjump/minaoshi/internal/models"
	"go.uber.org/zap"
)

// SearchBuffer is the number of extra neighbours requested beyond k so that filtering can
// still fill the result.
const SearchBuffer = 5

// Default result bounds.
const (
	DefaultKLocal  = 3
	DefaultKGlobal = 2
)

// RetrieveOptions bounds a retrieval. An empty CurrentFile means the closest snippets in the
// whole local corpus; otherwise only snippets from that file are accepted.
type RetrieveOptions struct {
	CurrentFile string
	KLocal      int
	KGlobal     int
}

// Retrieval is the outcome of one dual-context query. Underflow flags report that fewer than
// the requested number of matches were available.
type Retrieval struct {
	Local           []models.Match
	Global          []models.Match
	LocalUnderflow  bool
	GlobalUnderflow bool
}

// Retriever embeds a snippet and queries a local and a global source.
type Retriever struct {
	embedder embedding.Embedder
	logger   *zap.Logger
}

// NewRetriever creates a retriever. logger may be nil.
func NewRetriever(embedder embedding.Embedder, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, logger: logger}
}

// Retrieve embeds newSnippet once and returns up to KLocal local and KGlobal global matches,
// each ordered by ascending distance. The two searches are independent, so the same code may
// appear in both lists. Embedding errors are reported as models.ErrEmbeddingFailure.
func (r *Retriever) Retrieve(ctx context.Context, newSnippet string, local, global corpus.Source, opts RetrieveOptions) (*Retrieval, error) {
	if opts.KLocal < 0 || opts.KGlobal < 0 {
		return nil, fmt.Errorf("k_local and k_global must not be negative")
	}
	query, err := r.embedder.Embed(ctx, newSnippet)
	if err == nil {
		err = embedding.CheckVector(query, r.embedder.Dimensions())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingFailure, err)
	}

	res := &Retrieval{}
	res.Local, err = searchSource(ctx, local, query, opts.KLocal, fileFilter(opts.CurrentFile))
	if err != nil {
		return nil, fmt.Errorf("search local corpus: %w", err)
	}
	res.Global, err = searchSource(ctx, global, query, opts.KGlobal, nil)
	if err != nil {
		return nil, fmt.Errorf("search global corpus: %w", err)
	}
	res.LocalUnderflow = len(res.Local) < opts.KLocal
	res.GlobalUnderflow = len(res.Global) < opts.KGlobal

	r.logger.Debug("retrieved context",
		zap.String("current_file", opts.CurrentFile),
		zap.Int("local", len(res.Local)),
		zap.Int("global", len(res.Global)),
		zap.Bool("local_underflow", res.LocalUnderflow),
		zap.Bool("global_underflow", res.GlobalUnderflow),
	)
	return res, nil
}

func fileFilter(file string) func(models.Snippet) bool {
	if file == "" {
		return nil
	}
	return func(s models.Snippet) bool { return s.File == file }
}

// searchSource queries k+SearchBuffer neighbours and keeps, in order, the first k whose
// position exists in the store and that pass accept.
func searchSource(ctx context.Context, src corpus.Source, query []float32, k int, accept func(models.Snippet) bool) ([]models.Match, error) {
	matches := []models.Match{}
	if k == 0 || src.Empty() {
		return matches, nil
	}
	// the index never returns more than it holds; capping first keeps k+SearchBuffer from overflowing
	n := min(k, src.Index.Size()) + SearchBuffer
	hits, err := src.Index.Search(ctx, query, n)
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		snippet, ok := src.Store.Get(h.Position)
		if !ok {
			continue
		}
		if accept != nil && !accept(snippet) {
			continue
		}
		matches = append(matches, models.Match{Snippet: snippet, Position: h.Position, Distance: h.Distance})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}
