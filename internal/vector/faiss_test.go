//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"bytes"
	"context"
	"math"
	"testing"
)

func TestFAISSIndex_AddSearch(t *testing.T) {
	idx, err := NewFAISSIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(ctx, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Position != 0 {
		t.Errorf("top result should be position 0, got %d", results[0].Position)
	}
	if results[2].Position != 2 || math.Abs(results[2].Distance-math.Sqrt2) > 1e-5 {
		t.Errorf("last result = %+v", results[2])
	}
}

func TestFAISSIndex_MatchesMemoryIndex(t *testing.T) {
	ctx := context.Background()
	vecs := [][]float32{{0.2, 0.8}, {5, 5}, {-1, 2}, {0.3, 0.1}, {4, -2}}
	query := []float32{0.5, 0.5}

	fi, err := NewFAISSIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	defer fi.Close()
	mi, _ := NewMemoryIndex(2)
	_ = fi.Add(ctx, vecs)
	_ = mi.Add(ctx, vecs)

	got, _ := fi.Search(ctx, query, 5)
	want, _ := mi.Search(ctx, query, 5)
	for i := range want {
		if got[i].Position != want[i].Position {
			t.Errorf("rank %d: faiss=%d memory=%d", i, got[i].Position, want[i].Position)
		}
	}
}

func TestFAISSIndex_EncodeDecode(t *testing.T) {
	ctx := context.Background()
	src, _ := NewFAISSIndex(2)
	defer src.Close()
	_ = src.Add(ctx, [][]float32{{1, 1}, {2, 2}})

	var buf bytes.Buffer
	if err := src.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	dst, _ := NewFAISSIndex(2)
	defer dst.Close()
	if err := dst.Decode(&buf); err != nil {
		t.Fatal(err)
	}
	results, _ := dst.Search(ctx, []float32{2, 2}, 1)
	if dst.Size() != 2 || results[0].Position != 1 {
		t.Errorf("Size=%d results=%v", dst.Size(), results)
	}
}
