package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestReviewRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     *ReviewRequest
		wantErr bool
	}{
		{"valid", &ReviewRequest{RepoURL: "https://github.com/a/b", NewCode: "def f(): pass"}, false},
		{"missing repo", &ReviewRequest{NewCode: "def f(): pass"}, true},
		{"blank code", &ReviewRequest{RepoURL: "x", NewCode: "  \n"}, true},
		{"negative k", &ReviewRequest{RepoURL: "x", NewCode: "y", KLocal: -1}, true},
		{"zero k uses defaults", &ReviewRequest{RepoURL: "x", NewCode: "y"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error %v is not ErrInvalidRequest", err)
			}
		})
	}
}

func TestCorruptionError_IsIndexCorruption(t *testing.T) {
	err := fmt.Errorf("load corpus: %w", &CorruptionError{IndexSize: 3, Embeddings: 3, Snippets: 2})
	if !errors.Is(err, ErrIndexCorruption) {
		t.Fatalf("expected ErrIndexCorruption, got %v", err)
	}
	var ce *CorruptionError
	if !errors.As(err, &ce) || ce.Snippets != 2 {
		t.Errorf("errors.As: got %+v", ce)
	}
	if errors.Is(err, ErrEmbeddingFailure) {
		t.Error("corruption must not match ErrEmbeddingFailure")
	}
}

func TestSnippets(t *testing.T) {
	got := Snippets([]Match{{Snippet: Snippet{Code: "a"}}, {Snippet: Snippet{Code: "b"}}})
	if len(got) != 2 || got[0].Code != "a" || got[1].Code != "b" {
		t.Errorf("Snippets() = %+v", got)
	}
}
