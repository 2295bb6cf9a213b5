// Package models defines core data structures for snippets, matches, and review requests.
package models

// Snippet is one function-like unit of source code extracted from a corpus.
// Its identity is its position in the store that holds it.
type Snippet struct {
	Code string `json:"code"`
	File string `json:"file"`
	Repo string `json:"repo"`
}

// Match is a snippet returned by retrieval with its position and Euclidean distance to the query.
type Match struct {
	Snippet  Snippet `json:"snippet"`
	Position int     `json:"position"`
	Distance float64 `json:"distance"`
}

// Snippets returns the snippets of matches in order.
func Snippets(matches []Match) []Snippet {
	out := make([]Snippet, len(matches))
	for i, m := range matches {
		out[i] = m.Snippet
	}
	return out
}
