package keyword

import (
	"context"
	"sync"

	"github.com/hyperjump/minaoshi/internal/corpus"
	"github.com/hyperjump/minaoshi/internal/models"
)

// CorpusSearcher runs keyword searches over a corpus. It keeps the index of the last corpus it
// searched and rebuilds it when a different corpus is passed, such as after a reload.
// Searches are serialized.
type CorpusSearcher struct {
	keyword string

	mu        sync.Mutex
	corpus    *corpus.Corpus
	index     *SnippetIndex
	suggester *Suggester
}

// NewCorpusSearcher returns a searcher. keywordPrefix is the definition keyword used to name
// snippets; empty means "def ".
func NewCorpusSearcher(keywordPrefix string) *CorpusSearcher {
	return &CorpusSearcher{keyword: keywordPrefix}
}

// Search runs query against c. When nothing matches, the response carries a corrected query
// if one can be built from the corpus terms.
func (k *CorpusSearcher) Search(ctx context.Context, c *corpus.Corpus, query string, limit int, opts *SearchOptions) (*models.CorpusSearchResponse, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.corpus != c || k.index == nil {
		k.closeLocked()
		idx, err := NewSnippetIndex(k.keyword)
		if err != nil {
			return nil, err
		}
		if err := idx.Build(ctx, c.Snippets()); err != nil {
			_ = idx.Close()
			return nil, err
		}
		k.corpus, k.index, k.suggester = c, idx, NewSuggester(idx)
	}

	hits, err := k.index.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, err
	}
	store := c.Source().Store
	resp := &models.CorpusSearchResponse{Query: query, Hits: make([]models.SearchHit, 0, len(hits))}
	for _, h := range hits {
		sn, ok := store.Get(h.Position)
		if !ok {
			continue
		}
		resp.Hits = append(resp.Hits, models.SearchHit{Snippet: sn, Position: h.Position, Score: h.Score})
	}
	if len(resp.Hits) == 0 {
		if corrected, ok := k.suggester.CorrectedQuery(query); ok {
			resp.Suggestion = corrected
		}
	}
	return resp, nil
}

// Close releases the cached index.
func (k *CorpusSearcher) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closeLocked()
	return nil
}

func (k *CorpusSearcher) closeLocked() {
	if k.index != nil {
		_ = k.index.Close()
	}
	k.corpus, k.index, k.suggester = nil, nil, nil
}
