package embedding

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// pretokenize approximates the GPT-2 pattern used by RoBERTa. Go regexp has no lookahead, so
// trailing whitespace runs are kept whole.
var pretokenize = regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`)

// BPETokenizer is a byte-level BPE tokenizer loaded from a RoBERTa vocab.json and merges.txt,
// the files shipped with microsoft/codebert-base.
type BPETokenizer struct {
	vocab      map[string]int64
	ranks      map[[2]string]int
	byteToRune [256]rune
	cache      map[string][]int64
	mu         sync.Mutex
}

// LoadBPETokenizer reads vocab.json and merges.txt.
func LoadBPETokenizer(vocabPath, mergesPath string) (*BPETokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	vocab := make(map[string]int64)
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocab: %w", err)
	}

	f, err := os.Open(mergesPath)
	if err != nil {
		return nil, fmt.Errorf("open merges: %w", err)
	}
	defer f.Close()
	ranks := make(map[[2]string]int)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		ranks[[2]string{parts[0], parts[1]}] = len(ranks)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}
	return NewBPETokenizer(vocab, ranks), nil
}

// NewBPETokenizer builds a tokenizer from an in-memory vocabulary and merge ranks.
func NewBPETokenizer(vocab map[string]int64, ranks map[[2]string]int) *BPETokenizer {
	return &BPETokenizer{
		vocab:      vocab,
		ranks:      ranks,
		byteToRune: bytesToUnicode(),
		cache:      make(map[string][]int64),
	}
}

// Tokenize encodes text as <s> tokens </s>, truncated and padded to maxTokens.
func (t *BPETokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	var ids []int64
	for _, piece := range pretokenize.FindAllString(text, -1) {
		ids = append(ids, t.encodePiece(piece)...)
		if len(ids) >= maxTokens {
			break
		}
	}
	return frame(ids, maxTokens)
}

func (t *BPETokenizer) encodePiece(piece string) []int64 {
	t.mu.Lock()
	if ids, ok := t.cache[piece]; ok {
		t.mu.Unlock()
		return ids
	}
	t.mu.Unlock()

	var sb strings.Builder
	for _, b := range []byte(piece) {
		sb.WriteRune(t.byteToRune[b])
	}
	symbols := t.merge(sb.String())
	ids := make([]int64, 0, len(symbols))
	for _, s := range symbols {
		if id, ok := t.vocab[s]; ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, tokenUnk)
		}
	}

	t.mu.Lock()
	t.cache[piece] = ids
	t.mu.Unlock()
	return ids
}

// merge applies the lowest-ranked merge until none applies.
func (t *BPETokenizer) merge(word string) []string {
	symbols := make([]string, 0, len(word))
	for _, r := range word {
		symbols = append(symbols, string(r))
	}
	for len(symbols) > 1 {
		best := -1
		bestRank := 0
		for i := 0; i < len(symbols)-1; i++ {
			rank, ok := t.ranks[[2]string{symbols[i], symbols[i+1]}]
			if ok && (best < 0 || rank < bestRank) {
				best, bestRank = i, rank
			}
		}
		if best < 0 {
			break
		}
		a, b := symbols[best], symbols[best+1]
		merged := make([]string, 0, len(symbols)-1)
		for i := 0; i < len(symbols); i++ {
			if i < len(symbols)-1 && symbols[i] == a && symbols[i+1] == b {
				merged = append(merged, a+b)
				i++
				continue
			}
			merged = append(merged, symbols[i])
		}
		symbols = merged
	}
	return symbols
}

// bytesToUnicode is the reversible byte to printable rune table of byte-level BPE.
func bytesToUnicode() [256]rune {
	var table [256]rune
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	n := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			table[b] = rune(b)
			continue
		}
		table[b] = rune(256 + n)
		n++
	}
	return table
}
