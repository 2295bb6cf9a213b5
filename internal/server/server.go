// Package server provides the HTTP API for minaoshi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/minaoshi/internal/config"
	"github.com/hyperjump/minaoshi/internal/keyword"
	"github.com/hyperjump/minaoshi/internal/review"
	"go.uber.org/zap"
)

// Reloader reloads the global corpus from disk.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Server is the HTTP server for the minaoshi API.
type Server struct {
	service  *review.Service
	config   *config.Config
	reloader Reloader
	keywords *keyword.CorpusSearcher
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server. reloader may be nil, which disables the reload endpoint.
func NewServer(service *review.Service, cfg *config.Config, reloader Reloader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	keywordPrefix := ""
	if cfg != nil {
		keywordPrefix = cfg.Extract.Keyword
	}
	return &Server{
		service:  service,
		config:   cfg,
		reloader: reloader,
		keywords: keyword.NewCorpusSearcher(keywordPrefix),
		logger:   logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/review", s.handleReview)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/corpus/search", s.handleCorpusSearch)
	r.Post("/api/v1/corpus/reload", s.handleCorpusReload)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	_ = s.keywords.Close()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
