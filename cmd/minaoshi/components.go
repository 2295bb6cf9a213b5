package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/hyperjump/minaoshi/internal/config"
	"github.com/hyperjump/minaoshi/internal/corpus"
	"github.com/hyperjump/minaoshi/internal/embedding"
	"github.com/hyperjump/minaoshi/internal/extract"
	"github.com/hyperjump/minaoshi/internal/indexer"
	"github.com/hyperjump/minaoshi/internal/repo"
	"github.com/hyperjump/minaoshi/internal/review"
	"github.com/hyperjump/minaoshi/internal/search"
	"github.com/hyperjump/minaoshi/internal/storage"
	"github.com/hyperjump/minaoshi/internal/vector"
	"github.com/hyperjump/minaoshi/internal/watcher"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Builder  *indexer.Builder
	GitHub   *repo.GitHubClient
	Global   *corpus.Holder
	Service  *review.Service
}

// Close releases the embedder and the global corpus.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Global != nil {
		if g := c.Global.Load(); g != nil {
			_ = g.Close()
		}
	}
}

// newEmbedder builds the configured embedder. There is no silent fallback: a missing model is
// an error rather than a switch to the mock embedder.
func newEmbedder(cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case embedding.ProviderONNX:
		tok, err := embedding.LoadBPETokenizer(cfg.VocabPath, cfg.MergesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer: %w", err)
		}
		e, err := embedding.NewONNXEmbedder(cfg.ModelPath, tok, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX embedder: %w", err)
		}
		return embedding.WithCache(e, cfg.CacheSize), nil
	case embedding.ProviderOllama:
		var opts []embedding.OllamaOption
		if cfg.OllamaToken != "" {
			opts = append(opts, embedding.WithOllamaToken(cfg.OllamaToken))
		}
		e := embedding.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel, cfg.Dimensions, opts...)
		return embedding.WithCache(e, cfg.CacheSize), nil
	case embedding.ProviderMock:
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func newExtractor(cfg *config.ExtractConfig, logger *zap.Logger) (*extract.DefinitionExtractor, error) {
	return extract.NewDefinitionExtractor(
		extract.WithExtensions(cfg.Extensions...),
		extract.WithKeyword(cfg.Keyword),
		extract.WithExclude(cfg.Exclude...),
		extract.WithLogger(logger),
	)
}

func newGitHubClient(cfg *config.RepoConfig, logger *zap.Logger) *repo.GitHubClient {
	return repo.NewGitHubClient(
		repo.WithToken(cfg.Token),
		repo.WithURLs(cfg.APIURL, cfg.WebURL),
		repo.WithLogger(logger),
	)
}

func newReviewer(cfg *config.ReviewConfig) review.Reviewer {
	return review.NewOpenAIReviewer(review.OpenAIConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.TemperatureOrDefault(),
		MaxTokens:   cfg.MaxTokens,
		Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
	})
}

// corpusLoader loads the corpus file and refuses a corpus whose vectors do not match the
// embedder dimension. It serves both startup and watcher reloads.
func corpusLoader(indexType string, dimensions int) watcher.Loader {
	return func(ctx context.Context, path string) (*corpus.Corpus, error) {
		c, err := storage.LoadFile(ctx, path, indexType)
		if err != nil {
			return nil, err
		}
		if err := corpus.CheckDimensions(c, dimensions); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	}
}

// loadGlobal reads the persisted corpus. A missing file gives an empty global context; a
// corrupt or mismatched one is an error so that it is never served.
func loadGlobal(ctx context.Context, cfg *config.Config, dimensions int, logger *zap.Logger) (*corpus.Corpus, error) {
	c, err := corpusLoader(cfg.Vector.IndexType, dimensions)(ctx, cfg.Storage.CorpusPath)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrCorpusNotFound) {
		logger.Warn("no global corpus, global context will be empty", zap.String("path", cfg.Storage.CorpusPath))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load global corpus: %w", err)
	}
	logger.Info("global corpus loaded", zap.String("path", cfg.Storage.CorpusPath), zap.Int("snippets", c.Size()))
	return c, nil
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	embedder, err := newEmbedder(&cfg.Embedding)
	if err != nil {
		return nil, err
	}
	ext, err := newExtractor(&cfg.Extract, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	builderOpts := []indexer.BuilderOption{
		indexer.WithBatchSize(cfg.Embedding.BatchSize),
		indexer.WithIndexType(cfg.Vector.IndexType),
	}
	if debug {
		builderOpts = append(builderOpts, indexer.WithLogger(logger))
	}
	builder := indexer.NewBuilder(ext, embedder, builderOpts...)
	logger.Info("vector index initialized",
		zap.String("type", cfg.Vector.IndexType),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	global, err := loadGlobal(ctx, cfg, embedder.Dimensions(), logger)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	holder := corpus.NewHolder(global)

	gh := newGitHubClient(&cfg.Repo, logger)
	router := repo.Router{Remote: repo.NewGitHubAcquirer(gh, cfg.Repo.WorkDir)}
	if cfg.Repo.AllowLocal {
		router.Local = repo.LocalAcquirer{}
	}

	svc := review.NewService(router, builder, search.NewRetriever(embedder, logger), newReviewer(&cfg.Review), holder,
		review.WithDefaults(cfg.Retrieval.KLocal, cfg.Retrieval.KGlobal),
		review.WithLogger(logger))

	return &Components{
		Embedder: embedder,
		Builder:  builder,
		GitHub:   gh,
		Global:   holder,
		Service:  svc,
	}, nil
}
