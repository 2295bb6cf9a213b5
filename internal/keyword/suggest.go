package keyword

import (
	"sort"
	"strings"
	"sync"
)

// TermDictionary lists the indexed terms and their document frequencies.
type TermDictionary interface {
	GetAllTerms() ([]string, error)
	GetTermFrequency(term string) (int, error)
}

// Suggestion is a dictionary term close to a query term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
	Score     float64
}

// Suggester proposes corrected queries from the terms of a corpus, for identifier searches
// that found nothing.
type Suggester struct {
	dictionary     TermDictionary
	maxDistance    int
	maxSuggestions int

	once    sync.Once
	terms   []string
	termSet map[string]struct{}
	loadErr error
}

// SuggesterOption configures a Suggester.
type SuggesterOption func(*Suggester)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SuggesterOption {
	return func(s *Suggester) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMaxSuggestions sets the maximum number of suggestions per term.
func WithMaxSuggestions(n int) SuggesterOption {
	return func(s *Suggester) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSuggester creates a suggester over dict. Terms are read once, on first use.
func NewSuggester(dict TermDictionary, opts ...SuggesterOption) *Suggester {
	s := &Suggester{dictionary: dict, maxDistance: 2, maxSuggestions: 5}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Suggester) load() error {
	s.once.Do(func() {
		terms, err := s.dictionary.GetAllTerms()
		if err != nil {
			s.loadErr = err
			return
		}
		s.terms = terms
		s.termSet = make(map[string]struct{}, len(terms))
		for _, t := range terms {
			s.termSet[strings.ToLower(t)] = struct{}{}
		}
	})
	return s.loadErr
}

// Suggest returns dictionary terms within the maximum edit distance of term, ranked by
// frequency over distance.
func (s *Suggester) Suggest(term string) []Suggestion {
	if err := s.load(); err != nil {
		return nil
	}
	term = strings.ToLower(term)
	suggestions := make([]Suggestion, 0)
	for _, candidate := range s.terms {
		lower := strings.ToLower(candidate)
		if lower == term {
			continue
		}
		diff := len(lower) - len(term)
		if diff < 0 {
			diff = -diff
		}
		if diff > s.maxDistance {
			continue
		}
		d := LevenshteinDistance(term, lower)
		if d > s.maxDistance {
			continue
		}
		freq, err := s.dictionary.GetTermFrequency(candidate)
		if err != nil || freq < 1 {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Term:      candidate,
			Distance:  d,
			Frequency: freq,
			Score:     float64(freq) / float64(d+1),
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Term < suggestions[j].Term
	})
	if len(suggestions) > s.maxSuggestions {
		suggestions = suggestions[:s.maxSuggestions]
	}
	return suggestions
}

// CorrectedQuery replaces each unknown query term by its best suggestion. ok is false when
// nothing was changed.
func (s *Suggester) CorrectedQuery(query string) (corrected string, ok bool) {
	if err := s.load(); err != nil {
		return query, false
	}
	terms := tokenizeQuery(query)
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if _, known := s.termSet[term]; !known {
			if sugg := s.Suggest(term); len(sugg) > 0 {
				out = append(out, sugg[0].Term)
				ok = true
				continue
			}
		}
		out = append(out, term)
	}
	if !ok {
		return query, false
	}
	return strings.Join(out, " "), true
}

// LevenshteinDistance returns the number of single-rune insertions, deletions or substitutions
// turning a into b.
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
