// Package cli provides output helpers for the minaoshi command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/minaoshi/internal/models"
	"github.com/hyperjump/minaoshi/internal/storage"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────\n"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteReview writes a review result to w in the given format.
func WriteReview(w io.Writer, resp *models.ReviewResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\nReview completed in %dms (%d local snippets indexed)\n\n", resp.QueryTime, resp.LocalSnippets)
	writeMatchesText(w, "Local context", resp.LocalMatches, resp.LocalUnderflow)
	writeMatchesText(w, "Global context", resp.GlobalMatches, resp.GlobalUnderflow)
	fmt.Fprint(w, rule)
	fmt.Fprintf(w, "Feedback:\n\n%s\n", resp.Feedback)
	return nil
}

// WritePrompt writes an assembled prompt and the matches it was built from.
func WritePrompt(w io.Writer, prompt string, local, global []models.Match, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{
			"prompt":         prompt,
			"local_matches":  local,
			"global_matches": global,
		})
	}
	fmt.Fprintln(w, prompt)
	return nil
}

func writeMatchesText(w io.Writer, title string, matches []models.Match, underflow bool) {
	note := ""
	if underflow {
		note = " (fewer than requested)"
	}
	fmt.Fprintf(w, "--- %s: %d matches%s ---\n", title, len(matches), note)
	for i, m := range matches {
		fmt.Fprint(w, rule)
		fmt.Fprintf(w, "Rank: %d | Distance: %.4f | Position: %d\n", i+1, m.Distance, m.Position)
		fmt.Fprintf(w, "File: %s (%s)\n", m.Snippet.File, m.Snippet.Repo)
		fmt.Fprintf(w, "\n%s\n\n", Truncate(m.Snippet.Code, 400))
	}
}

// WriteSearch writes corpus keyword search results to w.
func WriteSearch(w io.Writer, resp *models.CorpusSearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\nFound %d snippets in %dms\n", len(resp.Hits), resp.QueryTime)
	if resp.Suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", resp.Suggestion)
	}
	fmt.Fprintln(w)
	for i, h := range resp.Hits {
		fmt.Fprint(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Position: %d\n", i+1, h.Score, h.Position)
		fmt.Fprintf(w, "File: %s (%s)\n", h.Snippet.File, h.Snippet.Repo)
		fmt.Fprintf(w, "\n%s\n\n", Truncate(h.Snippet.Code, 200))
	}
	return nil
}

// WriteStats writes stored corpus statistics to w.
func WriteStats(w io.Writer, st *storage.Stats, diskBytes int64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			*storage.Stats
			DiskUsageBytes int64 `json:"disk_usage_bytes"`
		}{st, diskBytes})
	}
	fmt.Fprintf(w, "Corpus:      %s\n", st.Name)
	fmt.Fprintf(w, "Created:     %s\n", st.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Index:       %s, %d vectors of %d dimensions\n", st.IndexType, st.IndexSize, st.Dimensions)
	fmt.Fprintf(w, "Embeddings:  %d\n", st.Embeddings)
	fmt.Fprintf(w, "Snippets:    %d from %d repositories\n", st.Snippets, st.Repos)
	fmt.Fprintf(w, "Disk usage:  %s\n", FormatBytes(diskBytes))
	return nil
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
