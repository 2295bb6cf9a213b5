package keyword

import (
	"context"
	"reflect"
	"testing"

	"github.com/hyperjump/minaoshi/internal/models"
)

var testSnippets = []models.Snippet{
	{Code: "def parse_config(path):\n    return load(path)", File: "config.py", Repo: "acme/app"},
	{Code: "def sendRequest(url):\n    return http.get(url)", File: "net.py", Repo: "acme/app"},
	{Code: "def helper():\n    parse_config('x')", File: "util.py", Repo: "other/lib"},
	{Code: "def tokenize(text):\n    return text.split()", File: "nlp.py", Repo: "other/lib"},
}

func newTestIndex(t *testing.T) *SnippetIndex {
	t.Helper()
	idx, err := NewSnippetIndex("")
	if err != nil {
		t.Fatalf("NewSnippetIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.Build(context.Background(), testSnippets); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func positions(hits []Hit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Position
	}
	return out
}

func TestSnippetIndex_DocCount(t *testing.T) {
	idx := newTestIndex(t)
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != uint64(len(testSnippets)) {
		t.Errorf("DocCount = %d, want %d", n, len(testSnippets))
	}
}

func TestSnippetIndex_SearchIdentifierParts(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	hits, err := idx.Search(ctx, "tokenize", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].Position != 3 {
		t.Fatalf("tokenize hits = %v", positions(hits))
	}

	// camelCase is split, so "request" finds sendRequest
	hits, err = idx.Search(ctx, "request", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].Position != 1 {
		t.Errorf("request hits = %v", positions(hits))
	}
}

func TestSnippetIndex_NameBoost(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "parse_config", 10, &SearchOptions{NameBoost: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) < 2 {
		t.Fatalf("hits = %v", positions(hits))
	}
	if hits[0].Position != 0 {
		t.Errorf("definition should outrank the call site, got %v", positions(hits))
	}
}

func TestSnippetIndex_RepoFilter(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "parse_config", 10, &SearchOptions{Repo: "other/lib"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(positions(hits), []int{2}) {
		t.Errorf("hits = %v, want [2]", positions(hits))
	}
}

func TestSnippetIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "tokenzie", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].Position != 3 {
		t.Errorf("fuzzy hits = %v", positions(hits))
	}
}

func TestSnippetIndex_EmptyQueryAndLimit(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "  ", 10, nil)
	if err != nil || hits == nil || len(hits) != 0 {
		t.Errorf("empty query: hits=%v err=%v", hits, err)
	}
	hits, err = idx.Search(context.Background(), "def", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("limit not applied: %v", positions(hits))
	}
}

func TestDefinitionName(t *testing.T) {
	tests := []struct {
		code, want string
	}{
		{"def parse_config(path):", "parse_config"},
		{"async def run():", "run"},
		{"x = 1", ""},
		{"def ", ""},
	}
	for _, tt := range tests {
		if got := DefinitionName(tt.code, "def "); got != tt.want {
			t.Errorf("DefinitionName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestSplitIdentifiers(t *testing.T) {
	got := SplitIdentifiers("parseHTTPRequest_v2(x)")
	want := []string{"parse", "http", "request", "v2", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitIdentifiers = %v, want %v", got, want)
	}
}
