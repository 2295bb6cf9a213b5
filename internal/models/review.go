package models

import (
	"fmt"
	"strings"
)

// ReviewRequest is the input of a review: a repository to use as local context and the new code.
type ReviewRequest struct {
	RepoURL     string `json:"repo_url"`
	NewCode     string `json:"new_code"`
	CurrentFile string `json:"current_file,omitempty"`
	KLocal      int    `json:"k_local,omitempty"`
	KGlobal     int    `json:"k_global,omitempty"`
}

// Validate checks required fields and rejects negative bounds. Zero bounds mean "use defaults".
func (r *ReviewRequest) Validate() error {
	if strings.TrimSpace(r.RepoURL) == "" {
		return fmt.Errorf("%w: repo_url is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.NewCode) == "" {
		return fmt.Errorf("%w: new_code is required", ErrInvalidRequest)
	}
	if r.KLocal < 0 || r.KGlobal < 0 {
		return fmt.Errorf("%w: k_local and k_global must not be negative", ErrInvalidRequest)
	}
	return nil
}

// ReviewResponse is the result of a review.
type ReviewResponse struct {
	RequestID       string  `json:"request_id,omitempty"`
	Feedback        string  `json:"feedback"`
	LocalMatches    []Match `json:"local_matches"`
	GlobalMatches   []Match `json:"global_matches"`
	LocalSnippets   int     `json:"local_snippets"`
	LocalUnderflow  bool    `json:"local_underflow,omitempty"`
	GlobalUnderflow bool    `json:"global_underflow,omitempty"`
	QueryTime       int64   `json:"query_time_ms"`
}
