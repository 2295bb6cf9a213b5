package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/minaoshi/internal/corpus"
	"github.com/hyperjump/minaoshi/internal/indexer"
	"github.com/hyperjump/minaoshi/internal/models"
	"github.com/hyperjump/minaoshi/internal/prompt"
	"github.com/hyperjump/minaoshi/internal/repo"
	"github.com/hyperjump/minaoshi/internal/search"
	"go.uber.org/zap"
)

// Service runs the review pipeline for one request at a time per call: acquire the
// repository, build its local corpus, retrieve against it and the shared global corpus,
// assemble the prompt and ask the reviewer.
type Service struct {
	acquirer  repo.Acquirer
	builder   *indexer.Builder
	retriever *search.Retriever
	reviewer  Reviewer
	global    *corpus.Holder
	kLocal    int
	kGlobal   int
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDefaults sets the bounds used when a request leaves k_local or k_global at zero.
func WithDefaults(kLocal, kGlobal int) Option {
	return func(s *Service) {
		if kLocal > 0 {
			s.kLocal = kLocal
		}
		if kGlobal > 0 {
			s.kGlobal = kGlobal
		}
	}
}

// NewService wires the pipeline. reviewer may be nil when only Prepare is used.
func NewService(acquirer repo.Acquirer, builder *indexer.Builder, retriever *search.Retriever, reviewer Reviewer, global *corpus.Holder, opts ...Option) *Service {
	if global == nil {
		global = corpus.NewHolder(nil)
	}
	s := &Service{
		acquirer:  acquirer,
		builder:   builder,
		retriever: retriever,
		reviewer:  reviewer,
		global:    global,
		kLocal:    search.DefaultKLocal,
		kGlobal:   search.DefaultKGlobal,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Global returns the holder of the shared corpus.
func (s *Service) Global() *corpus.Holder { return s.global }

// Prepared is everything a review needs except the model call.
type Prepared struct {
	Prompt        string
	Retrieval     *search.Retrieval
	LocalSnippets int
}

// Prepare acquires the repository, retrieves local and global context and assembles the
// prompt. The checkout and local corpus are discarded before returning, on success or failure.
func (s *Service) Prepare(ctx context.Context, req *models.ReviewRequest) (*Prepared, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	checkout, err := s.acquirer.Acquire(ctx, req.RepoURL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := checkout.Cleanup(); err != nil {
			s.logger.Warn("checkout cleanup failed", zap.String("dir", checkout.Dir), zap.Error(err))
		}
	}()

	local, err := s.builder.BuildDirectory(ctx, "local", checkout.Dir, checkout.Repo)
	if err != nil {
		return nil, fmt.Errorf("build local corpus: %w", err)
	}
	defer local.Close()

	opts := search.RetrieveOptions{CurrentFile: req.CurrentFile, KLocal: req.KLocal, KGlobal: req.KGlobal}
	if opts.KLocal == 0 {
		opts.KLocal = s.kLocal
	}
	if opts.KGlobal == 0 {
		opts.KGlobal = s.kGlobal
	}

	res, err := s.retriever.Retrieve(ctx, req.NewCode, local.Source(), s.global.Load().Source(), opts)
	if err != nil {
		return nil, err
	}

	return &Prepared{
		Prompt:        prompt.Assemble(req.NewCode, res.Local, res.Global),
		Retrieval:     res,
		LocalSnippets: local.Size(),
	}, nil
}

// Review runs the full pipeline and returns the reviewer's feedback with the matches used.
func (s *Service) Review(ctx context.Context, req *models.ReviewRequest) (*models.ReviewResponse, error) {
	start := time.Now()
	id := uuid.NewString()
	log := s.logger.With(zap.String("request_id", id), zap.String("repo", req.RepoURL))

	if s.reviewer == nil {
		return nil, fmt.Errorf("%w: no reviewer configured", models.ErrReviewServiceFailure)
	}

	p, err := s.Prepare(ctx, req)
	if err != nil {
		log.Warn("review preparation failed", zap.Error(err))
		return nil, err
	}

	feedback, err := s.reviewer.Review(ctx, p.Prompt)
	if err != nil {
		log.Error("reviewer failed", zap.Error(err))
		return nil, err
	}

	resp := &models.ReviewResponse{
		RequestID:       id,
		Feedback:        feedback,
		LocalMatches:    p.Retrieval.Local,
		GlobalMatches:   p.Retrieval.Global,
		LocalSnippets:   p.LocalSnippets,
		LocalUnderflow:  p.Retrieval.LocalUnderflow,
		GlobalUnderflow: p.Retrieval.GlobalUnderflow,
		QueryTime:       time.Since(start).Milliseconds(),
	}
	log.Info("review completed",
		zap.Int("local_matches", len(resp.LocalMatches)),
		zap.Int("global_matches", len(resp.GlobalMatches)),
		zap.Int64("query_time_ms", resp.QueryTime))
	return resp, nil
}
