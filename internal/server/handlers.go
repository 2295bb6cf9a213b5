package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/minaoshi/internal/keyword"
	"github.com/hyperjump/minaoshi/internal/models"
	"github.com/hyperjump/minaoshi/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
	maxReviewBodyBytes = 1 << 20
)

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	body := http.MaxBytesReader(w, r.Body, maxReviewBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("review request", zap.String("repo", req.RepoURL), zap.String("current_file", req.CurrentFile))
	resp, err := s.service.Review(r.Context(), &req)
	if err != nil {
		status := reviewStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("review failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// reviewStatus maps pipeline errors to HTTP status codes.
func reviewStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest), errors.Is(err, models.ErrRepoUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrReviewServiceFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCorpusSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultSearchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSearchLimit)
	}
	opts := &keyword.SearchOptions{NameBoost: 3, Repo: q.Get("repo"), FuzzyEnabled: q.Get("fuzzy") == "true"}

	c := s.service.Global().Load()
	if c == nil {
		s.respondJSON(w, http.StatusOK, &models.CorpusSearchResponse{Query: query, Hits: []models.SearchHit{}})
		return
	}
	start := time.Now()
	resp, err := s.keywords.Search(r.Context(), c, query, limit, opts)
	if err != nil {
		s.logger.Error("corpus search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCorpusReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		s.respondError(w, http.StatusNotImplemented, "reload not enabled")
		return
	}
	if err := s.reloader.Reload(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrIndexCorruption) {
			status = http.StatusConflict
		}
		s.respondError(w, status, err.Error())
		return
	}
	size := 0
	if c := s.service.Global().Load(); c != nil {
		size = c.Size()
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "reloaded", "snippets": size})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"global_loaded": false}
	if c := s.service.Global().Load(); c != nil {
		resp["global_loaded"] = true
		resp["global_snippets"] = c.Size()
		resp["dimensions"] = c.Dimensions()
		resp["vector_index_type"] = c.IndexType()
	}

	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"k_local":              s.config.Retrieval.KLocal,
			"k_global":             s.config.Retrieval.KGlobal,
			"review_model":         s.config.Review.Model,
			"corpus_path":          s.config.Storage.CorpusPath,
		}
		if diskBytes, err := storage.CorpusDiskUsage(s.config.Storage.CorpusPath); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
