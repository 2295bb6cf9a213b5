package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/minaoshi/internal/embedding"
	"github.com/hyperjump/minaoshi/internal/extract"
	"github.com/hyperjump/minaoshi/internal/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func newTestBuilder(t *testing.T, e embedding.Embedder, opts ...BuilderOption) *Builder {
	t.Helper()
	ex, err := extract.NewDefinitionExtractor()
	if err != nil {
		t.Fatal(err)
	}
	return NewBuilder(ex, e, opts...)
}

func TestBuildDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.py"), "def a():\n    return 1\n\ndef b():\n    return 2\n")
	writeFile(t, filepath.Join(root, "b.py"), "def c():\n    return 3\n")

	b := newTestBuilder(t, embedding.NewMockEmbedder(8), WithBatchSize(2))
	c, err := b.BuildDirectory(context.Background(), "local", root, "repo")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.Size() != 3 || c.Index().Size() != 3 || len(c.Embeddings()) != 3 {
		t.Fatalf("size=%d index=%d embeddings=%d", c.Size(), c.Index().Size(), len(c.Embeddings()))
	}
	// Position i in the index must hold the embedding of snippet i.
	e := embedding.NewMockEmbedder(8)
	for i, s := range c.Snippets() {
		want, _ := e.Embed(context.Background(), s.Code)
		got := c.Embeddings()[i]
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("embedding %d does not belong to snippet %q", i, s.Code)
			}
		}
	}
}

func TestBuildSnippets_Empty(t *testing.T) {
	b := newTestBuilder(t, embedding.NewMockEmbedder(4))
	c, err := b.BuildSnippets(context.Background(), "local", nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Size() != 0 || !c.Source().Empty() {
		t.Errorf("expected empty corpus, size=%d", c.Size())
	}
}

type failingEmbedder struct{ *embedding.MockEmbedder }

func (f failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("model crashed")
}

type shortEmbedder struct{ *embedding.MockEmbedder }

func (s shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}

func TestBuildSnippets_EmbeddingFailure(t *testing.T) {
	snippets := []models.Snippet{{Code: "def a(): pass"}, {Code: "def b(): pass"}}
	for name, e := range map[string]embedding.Embedder{
		"error":         failingEmbedder{embedding.NewMockEmbedder(4)},
		"bad dimension": shortEmbedder{embedding.NewMockEmbedder(4)},
	} {
		t.Run(name, func(t *testing.T) {
			b := newTestBuilder(t, e)
			_, err := b.BuildSnippets(context.Background(), "local", snippets)
			if !errors.Is(err, models.ErrEmbeddingFailure) {
				t.Errorf("expected ErrEmbeddingFailure, got %v", err)
			}
		})
	}
}

func TestBuildDirectory_MissingRoot(t *testing.T) {
	b := newTestBuilder(t, embedding.NewMockEmbedder(4))
	if _, err := b.BuildDirectory(context.Background(), "local", filepath.Join(t.TempDir(), "nope"), "r"); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestRepoDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "zeta", "z.py"), "def z(): pass")
	writeFile(t, filepath.Join(root, "alpha", "a.py"), "def a(): pass")
	writeFile(t, filepath.Join(root, "README.md"), "hi")

	dirs, err := RepoDirs(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 2 || dirs[0].Repo != "alpha" || dirs[1].Repo != "zeta" {
		t.Errorf("got %+v", dirs)
	}

	flat := t.TempDir()
	writeFile(t, filepath.Join(flat, "x.py"), "def x(): pass")
	dirs, _ = RepoDirs(flat)
	if len(dirs) != 1 || dirs[0].Root != flat {
		t.Errorf("flat root: got %+v", dirs)
	}

	b := newTestBuilder(t, embedding.NewMockEmbedder(4))
	all, _ := RepoDirs(root)
	c, err := b.BuildDirectories(context.Background(), "global", all)
	if err != nil {
		t.Fatal(err)
	}
	snips := c.Snippets()
	if len(snips) != 2 || snips[0].Repo != "alpha" || snips[1].Repo != "zeta" {
		t.Errorf("got %+v", snips)
	}
}
