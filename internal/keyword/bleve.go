// Package keyword provides keyword search over corpus snippets, backed by an in-memory Bleve index.
package keyword

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/minaoshi/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies the score of matches in the definition name. Values <= 1 disable the
	// separate name query.
	NameBoost float64
	// Repo restricts hits to one corpus identifier.
	Repo string
	// FuzzyEnabled matches terms within Fuzziness edits (default 2).
	FuzzyEnabled bool
	Fuzziness    int
}

// Hit is a keyword search result, identified by the snippet position in its corpus.
type Hit struct {
	Position int
	Score    float64
}

// SnippetIndex is an in-memory keyword index over snippets.
type SnippetIndex struct {
	index   bleve.Index
	keyword string
}

// NewSnippetIndex creates an empty in-memory index. keywordPrefix is the definition keyword used to
// find each snippet's name; empty means "def ".
func NewSnippetIndex(keywordPrefix string) (*SnippetIndex, error) {
	if keywordPrefix == "" {
		keywordPrefix = "def "
	}
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	// standard: lowercase and tokenize without stemming so identifiers match as written
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", text)
	docMapping.AddFieldMappingsAt("terms", text)
	docMapping.AddFieldMappingsAt("code", text)
	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keywordanalyzer.Name
	docMapping.AddFieldMappingsAt("file", exact)
	docMapping.AddFieldMappingsAt("repo", exact)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &SnippetIndex{index: index, keyword: keywordPrefix}, nil
}

// Build indexes every snippet under its position.
func (b *SnippetIndex) Build(ctx context.Context, snippets []models.Snippet) error {
	batch := b.index.NewBatch()
	for i, s := range snippets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.add(batch, i, s); err != nil {
			return err
		}
		if batch.Size() >= 500 {
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch = b.index.NewBatch()
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Index indexes one snippet at position.
func (b *SnippetIndex) Index(ctx context.Context, position int, s models.Snippet) error {
	return b.index.Index(strconv.Itoa(position), b.document(s))
}

func (b *SnippetIndex) add(batch *bleve.Batch, position int, s models.Snippet) error {
	return batch.Index(strconv.Itoa(position), b.document(s))
}

func (b *SnippetIndex) document(s models.Snippet) map[string]interface{} {
	return map[string]interface{}{
		"name":  DefinitionName(s.Code, b.keyword),
		"terms": strings.Join(SplitIdentifiers(s.Code), " "),
		"code":  s.Code,
		"file":  s.File,
		"repo":  s.Repo,
	}
}

// Search runs query and returns up to limit hits, best first. Ties are ordered by position.
// With opts.NameBoost > 1, name and body queries run separately and their scores are added
// with the name score multiplied by the boost.
func (b *SnippetIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}
	if o.FuzzyEnabled && o.Fuzziness <= 0 {
		o.Fuzziness = 2
	}

	if o.NameBoost <= 1 {
		scores, err := b.run(b.fieldQuery(query, "", o), limit, o.Repo)
		if err != nil {
			return nil, err
		}
		return topHits(scores, limit), nil
	}

	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	nameScores, err := b.run(b.fieldQuery(query, "name", o), reqSize, o.Repo)
	if err != nil {
		return nil, err
	}
	bodyQuery := bleve.NewDisjunctionQuery(b.fieldQuery(query, "terms", o), b.fieldQuery(query, "code", o))
	bodyScores, err := b.run(bodyQuery, reqSize, o.Repo)
	if err != nil {
		return nil, err
	}
	for id, s := range nameScores {
		bodyScores[id] += s * o.NameBoost
	}
	return topHits(bodyScores, limit), nil
}

func (b *SnippetIndex) fieldQuery(query, field string, o SearchOptions) blevequery.Query {
	terms := tokenizeQuery(query)
	if !o.FuzzyEnabled || len(terms) == 0 {
		q := bleve.NewMatchQuery(query)
		if field != "" {
			q.SetField(field)
		}
		return q
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(o.Fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func (b *SnippetIndex) run(q blevequery.Query, size int, repo string) (map[int]float64, error) {
	if repo != "" {
		rq := bleve.NewTermQuery(repo)
		rq.SetField("repo")
		q = bleve.NewConjunctionQuery(q, rq)
	}
	req := bleve.NewSearchRequest(q)
	req.Size = size
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	scores := make(map[int]float64, len(results.Hits))
	for _, hit := range results.Hits {
		pos, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		scores[pos] = hit.Score
	}
	return scores, nil
}

func topHits(scores map[int]float64, limit int) []Hit {
	hits := make([]Hit, 0, len(scores))
	for pos, s := range scores {
		hits = append(hits, Hit{Position: pos, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// DocCount returns the number of indexed snippets.
func (b *SnippetIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// GetAllTerms returns the unique terms of the name and terms fields.
func (b *SnippetIndex) GetAllTerms() ([]string, error) {
	terms := make([]string, 0)
	seen := make(map[string]struct{})
	for _, field := range []string{"name", "terms"} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("field dictionary %s: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; !ok {
				terms = append(terms, entry.Term)
				seen[entry.Term] = struct{}{}
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}

// GetTermFrequency returns the number of snippets containing term.
func (b *SnippetIndex) GetTermFrequency(term string) (int, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(term))
	req.Size = 0
	results, err := b.index.Search(req)
	if err != nil {
		return 0, fmt.Errorf("failed to search for term frequency: %w", err)
	}
	return int(results.Total), nil
}

// Close releases the index.
func (b *SnippetIndex) Close() error {
	return b.index.Close()
}

// DefinitionName returns the identifier following the first occurrence of keyword in code.
func DefinitionName(code, keyword string) string {
	i := strings.Index(code, keyword)
	if i < 0 {
		return ""
	}
	rest := code[i+len(keyword):]
	end := strings.IndexFunc(rest, func(r rune) bool { return !isIdentRune(r) })
	if end < 0 {
		end = len(rest)
	}
	return rest[:end]
}

// SplitIdentifiers returns the lowercase parts of every identifier in code, split on
// underscores and camelCase boundaries. "parseHTTPRequest_v2" gives parse, http, request, v2.
func SplitIdentifiers(code string) []string {
	var out []string
	for _, ident := range strings.FieldsFunc(code, func(r rune) bool { return !isIdentRune(r) }) {
		for _, part := range strings.Split(ident, "_") {
			out = append(out, splitCamel(part)...)
		}
	}
	return out
}

func splitCamel(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := unicode.IsLower(prev) && unicode.IsUpper(cur) ||
			unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if boundary {
			out = append(out, strings.ToLower(string(runes[start:i])))
			start = i
		}
	}
	if start < len(runes) {
		out = append(out, strings.ToLower(string(runes[start:])))
	}
	return out
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}
