package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/minaoshi/internal/corpus"
	"github.com/hyperjump/minaoshi/internal/embedding"
	"github.com/hyperjump/minaoshi/internal/extract"
	"github.com/hyperjump/minaoshi/internal/indexer"
	"github.com/hyperjump/minaoshi/internal/models"
	"github.com/hyperjump/minaoshi/internal/repo"
	"github.com/hyperjump/minaoshi/internal/search"
)

const xSource = "def add(a, b):\n    return a + b\n\ndef sub(a, b):\n    return a - b\n\ndef mul(a, b):\n    return a * b\n"

type trackingAcquirer struct {
	dir      string
	err      error
	cleanups int
}

func (a *trackingAcquirer) Acquire(ctx context.Context, id string) (*repo.Checkout, error) {
	if a.err != nil {
		return nil, a.err
	}
	return repo.NewCheckout(a.dir, id, func() error {
		a.cleanups++
		return nil
	}), nil
}

func newTestService(t *testing.T, acq repo.Acquirer, reviewer Reviewer, global []models.Snippet) *Service {
	t.Helper()
	emb := embedding.NewMockEmbedder(16)
	ext, err := extract.NewDefinitionExtractor()
	if err != nil {
		t.Fatal(err)
	}
	builder := indexer.NewBuilder(ext, emb)
	holder := corpus.NewHolder(nil)
	if global != nil {
		g, err := builder.BuildSnippets(context.Background(), "global", global)
		if err != nil {
			t.Fatal(err)
		}
		holder.Swap(g)
	}
	return NewService(acq, builder, search.NewRetriever(emb, nil), reviewer, holder)
}

func writeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.py"), []byte(xSource), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pkg", "y.py"), []byte("def other():\n    pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestService_Review(t *testing.T) {
	acq := &trackingAcquirer{dir: writeRepo(t)}
	var gotPrompt string
	reviewer := ReviewerFunc(func(ctx context.Context, p string) (string, error) {
		gotPrompt = p
		return "1. Consider type hints.", nil
	})
	global := []models.Snippet{
		{Code: "def g1():\n    return 1", File: "a.py", Repo: "other/one"},
		{Code: "def g2():\n    return 2", File: "b.py", Repo: "other/two"},
	}
	svc := newTestService(t, acq, reviewer, global)

	resp, err := svc.Review(context.Background(), &models.ReviewRequest{
		RepoURL:     "https://github.com/acme/widgets",
		NewCode:     "def sub(a, b):\n    return a - b",
		CurrentFile: "x.py",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Feedback != "1. Consider type hints." {
		t.Errorf("feedback=%q", resp.Feedback)
	}
	if resp.RequestID == "" {
		t.Error("expected a request id")
	}
	if resp.LocalSnippets != 4 {
		t.Errorf("local snippets=%d, want 4", resp.LocalSnippets)
	}
	if len(resp.LocalMatches) != 3 {
		t.Fatalf("local matches=%d, want 3", len(resp.LocalMatches))
	}
	for _, m := range resp.LocalMatches {
		if m.Snippet.File != "x.py" {
			t.Errorf("match from %q escaped the file filter", m.Snippet.File)
		}
	}
	if resp.LocalMatches[0].Snippet.Code != "def sub(a, b):\n    return a - b" || resp.LocalMatches[0].Distance != 0 {
		t.Errorf("closest local match = %+v", resp.LocalMatches[0])
	}
	if len(resp.GlobalMatches) != 2 || resp.GlobalUnderflow || resp.LocalUnderflow {
		t.Errorf("global=%d underflow=%v/%v", len(resp.GlobalMatches), resp.LocalUnderflow, resp.GlobalUnderflow)
	}
	if !strings.Contains(gotPrompt, "File: x.py") || !strings.Contains(gotPrompt, "def g1()") {
		t.Errorf("prompt missing context:\n%s", gotPrompt)
	}
	if acq.cleanups != 1 {
		t.Errorf("cleanups=%d, want 1", acq.cleanups)
	}
}

func TestService_EmptyGlobalCorpus(t *testing.T) {
	acq := &trackingAcquirer{dir: writeRepo(t)}
	svc := newTestService(t, acq, ReviewerFunc(func(context.Context, string) (string, error) { return "ok", nil }), nil)

	resp, err := svc.Review(context.Background(), &models.ReviewRequest{RepoURL: "r", NewCode: "def f(): pass"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GlobalMatches == nil || len(resp.GlobalMatches) != 0 || !resp.GlobalUnderflow {
		t.Errorf("global=%v underflow=%v", resp.GlobalMatches, resp.GlobalUnderflow)
	}
	if len(resp.LocalMatches) != 3 {
		t.Errorf("local=%d, want 3", len(resp.LocalMatches))
	}
}

func TestService_ReviewerFailureCleansUp(t *testing.T) {
	acq := &trackingAcquirer{dir: writeRepo(t)}
	svc := newTestService(t, acq, ReviewerFunc(func(context.Context, string) (string, error) {
		return "", models.ErrReviewServiceFailure
	}), nil)

	resp, err := svc.Review(context.Background(), &models.ReviewRequest{RepoURL: "r", NewCode: "def f(): pass"})
	if !errors.Is(err, models.ErrReviewServiceFailure) || resp != nil {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	if acq.cleanups != 1 {
		t.Errorf("cleanups=%d, want 1", acq.cleanups)
	}
}

func TestService_RepoUnavailable(t *testing.T) {
	acq := &trackingAcquirer{err: models.ErrRepoUnavailable}
	svc := newTestService(t, acq, ReviewerFunc(func(context.Context, string) (string, error) {
		t.Error("reviewer must not be called")
		return "", nil
	}), nil)

	_, err := svc.Review(context.Background(), &models.ReviewRequest{RepoURL: "r", NewCode: "def f(): pass"})
	if !errors.Is(err, models.ErrRepoUnavailable) {
		t.Fatalf("expected ErrRepoUnavailable, got %v", err)
	}
}

func TestService_InvalidRequest(t *testing.T) {
	acq := &trackingAcquirer{dir: t.TempDir()}
	svc := newTestService(t, acq, nil, nil)
	if _, err := svc.Prepare(context.Background(), &models.ReviewRequest{RepoURL: "r"}); err == nil {
		t.Fatal("expected validation error")
	}
	if acq.cleanups != 0 {
		t.Error("nothing should have been acquired")
	}
}

func TestService_PrepareWithoutReviewer(t *testing.T) {
	acq := &trackingAcquirer{dir: writeRepo(t)}
	svc := newTestService(t, acq, nil, nil)

	p, err := svc.Prepare(context.Background(), &models.ReviewRequest{RepoURL: "r", NewCode: "def f(): pass", KLocal: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Retrieval.Local) != 1 || !strings.Contains(p.Prompt, "### New Code\ndef f(): pass") {
		t.Errorf("prepared = %+v", p)
	}
	if _, err := svc.Review(context.Background(), &models.ReviewRequest{RepoURL: "r", NewCode: "x"}); !errors.Is(err, models.ErrReviewServiceFailure) {
		t.Errorf("expected ErrReviewServiceFailure without a reviewer, got %v", err)
	}
}
