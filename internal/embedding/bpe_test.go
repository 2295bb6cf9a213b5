package embedding

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeBPEFiles(t *testing.T) (vocabPath, mergesPath string) {
	t.Helper()
	dir := t.TempDir()
	vocabPath = filepath.Join(dir, "vocab.json")
	mergesPath = filepath.Join(dir, "merges.txt")
	vocab := `{"d": 10, "e": 11, "f": 12, "de": 13, "def": 14, "Ġf": 15, "Ġ": 5}`
	merges := "#version: 0.2\nd e\nde f\nĠ f\n"
	if err := os.WriteFile(vocabPath, []byte(vocab), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(mergesPath, []byte(merges), 0600); err != nil {
		t.Fatal(err)
	}
	return vocabPath, mergesPath
}

func TestBPETokenizer_Tokenize(t *testing.T) {
	vocabPath, mergesPath := writeBPEFiles(t)
	tok, err := LoadBPETokenizer(vocabPath, mergesPath)
	if err != nil {
		t.Fatal(err)
	}

	ids, mask := tok.Tokenize("def f", 6)
	wantIDs := []int64{tokenBOS, 14, 15, tokenEOS, tokenPad, tokenPad}
	wantMask := []int64{1, 1, 1, 1, 0, 0}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Errorf("ids = %v, want %v", ids, wantIDs)
	}
	if !reflect.DeepEqual(mask, wantMask) {
		t.Errorf("mask = %v, want %v", mask, wantMask)
	}

	// second call is served from the piece cache and must match
	again, _ := tok.Tokenize("def f", 6)
	if !reflect.DeepEqual(again, wantIDs) {
		t.Errorf("cached ids = %v, want %v", again, wantIDs)
	}
}

func TestBPETokenizer_unknownAndTruncation(t *testing.T) {
	vocabPath, mergesPath := writeBPEFiles(t)
	tok, err := LoadBPETokenizer(vocabPath, mergesPath)
	if err != nil {
		t.Fatal(err)
	}

	ids, _ := tok.Tokenize("x", 4)
	if ids[1] != tokenUnk {
		t.Errorf("unknown symbol id = %d, want %d", ids[1], tokenUnk)
	}

	ids, mask := tok.Tokenize("def def def def", 4)
	if len(ids) != 4 || ids[0] != tokenBOS || ids[3] != tokenEOS {
		t.Errorf("truncated ids = %v", ids)
	}
	for i, m := range mask {
		if m != 1 {
			t.Errorf("mask[%d] = %d, want 1", i, m)
		}
	}
}

func TestLoadBPETokenizer_missingFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadBPETokenizer(filepath.Join(dir, "vocab.json"), filepath.Join(dir, "merges.txt")); err == nil {
		t.Error("expected error for missing vocab")
	}
	vocabPath, _ := writeBPEFiles(t)
	if _, err := LoadBPETokenizer(vocabPath, filepath.Join(dir, "merges.txt")); err == nil {
		t.Error("expected error for missing merges")
	}
}

func TestBytesToUnicode_spaceMapsToG(t *testing.T) {
	table := bytesToUnicode()
	if table[' '] != 'Ġ' {
		t.Errorf("space maps to %q, want Ġ", table[' '])
	}
	if table['a'] != 'a' {
		t.Errorf("printable byte remapped: %q", table['a'])
	}
}
