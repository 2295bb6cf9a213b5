// Package indexer builds snippet corpora: extract, embed in batches, index.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hyperjump/minaoshi/internal/corpus"
	"github.com/hyperjump/minaoshi/internal/embedding"
	"github.com/hyperjump/minaoshi/internal/extract"
	"github.com/hyperjump/minaoshi/internal/models"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of snippets embedded per call.
const DefaultBatchSize = 16

// Builder turns directories or snippet lists into corpora.
type Builder struct {
	extractor extract.SnippetExtractor
	embedder  embedding.Embedder
	indexType string
	batchSize int
	logger    *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithIndexType selects the vector index implementation ("memory" or "faiss").
func WithIndexType(t string) BuilderOption {
	return func(b *Builder) { b.indexType = t }
}

// NewBuilder creates a builder.
func NewBuilder(extractor extract.SnippetExtractor, embedder embedding.Embedder, opts ...BuilderOption) *Builder {
	b := &Builder{
		extractor: extractor,
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b
}

// RepoDir is a directory to extract and the corpus identifier recorded on its snippets.
type RepoDir struct {
	Root string
	Repo string
}

// BuildDirectory extracts root and builds a corpus from its snippets.
func (b *Builder) BuildDirectory(ctx context.Context, name, root, repo string) (*corpus.Corpus, error) {
	return b.BuildDirectories(ctx, name, []RepoDir{{Root: root, Repo: repo}})
}

// BuildDirectories extracts every directory in order and builds one corpus from all snippets.
func (b *Builder) BuildDirectories(ctx context.Context, name string, dirs []RepoDir) (*corpus.Corpus, error) {
	var snippets []models.Snippet
	for _, d := range dirs {
		s, err := b.extractor.Extract(ctx, d.Root, d.Repo)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", d.Repo, err)
		}
		snippets = append(snippets, s...)
	}
	return b.BuildSnippets(ctx, name, snippets)
}

// BuildSnippets embeds snippets in batches and returns an aligned corpus.
// Any embedding failure is reported as models.ErrEmbeddingFailure.
func (b *Builder) BuildSnippets(ctx context.Context, name string, snippets []models.Snippet) (*corpus.Corpus, error) {
	c, err := corpus.NewEmpty(name, b.indexType, b.embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	for start := 0; start < len(snippets); start += b.batchSize {
		end := start + b.batchSize
		if end > len(snippets) {
			end = len(snippets)
		}
		batch := snippets[start:end]
		texts := make([]string, len(batch))
		for i, s := range batch {
			texts[i] = s.Code
		}
		vecs, err := b.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			err = checkBatch(vecs, len(batch), b.embedder.Dimensions())
		}
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%w: batch %d-%d: %v", models.ErrEmbeddingFailure, start, end, err)
		}
		if err := c.Append(ctx, batch, vecs); err != nil {
			_ = c.Close()
			return nil, err
		}
		b.logger.Debug("embedded batch", zap.String("corpus", name), zap.Int("done", end), zap.Int("total", len(snippets)))
	}
	b.logger.Info("corpus built", zap.String("corpus", name), zap.Int("snippets", c.Size()))
	return c, nil
}

func checkBatch(vecs [][]float32, want, dimensions int) error {
	if len(vecs) != want {
		return fmt.Errorf("got %d embeddings for %d snippets", len(vecs), want)
	}
	for i, v := range vecs {
		if err := embedding.CheckVector(v, dimensions); err != nil {
			return fmt.Errorf("snippet %d: %w", i, err)
		}
	}
	return nil
}

// RepoDirs lists the immediate subdirectories of root as repositories, sorted by name.
// A root without subdirectories is itself the only repository.
func RepoDirs(root string) ([]RepoDir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read codebase directory: %w", err)
	}
	var dirs []RepoDir
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, RepoDir{Root: filepath.Join(root, e.Name()), Repo: e.Name()})
		}
	}
	if len(dirs) == 0 {
		return []RepoDir{{Root: root, Repo: filepath.Base(root)}}, nil
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Repo < dirs[j].Repo })
	return dirs, nil
}
