package models

// SearchHit is a keyword match in a corpus.
type SearchHit struct {
	Snippet  Snippet `json:"snippet"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// CorpusSearchResponse is the result of a keyword search over the global corpus. Suggestion is
// set when the query found nothing and a corrected query exists.
type CorpusSearchResponse struct {
	Query      string      `json:"query"`
	Hits       []SearchHit `json:"hits"`
	Suggestion string      `json:"suggestion,omitempty"`
	QueryTime  int64       `json:"query_time_ms"`
}
