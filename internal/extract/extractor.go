// Package extract turns source trees into snippets.
package extract

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hyperjump/minaoshi/internal/models"
	"go.uber.org/zap"
)

// SnippetExtractor produces snippets from a directory tree.
type SnippetExtractor interface {
	Extract(ctx context.Context, root, repo string) ([]models.Snippet, error)
}

const (
	// DefaultKeyword starts a Python function definition.
	DefaultKeyword  = "def "
	blockTerminator = "\n\n"
)

// DefaultExtensions are the file extensions scanned when none are configured.
var DefaultExtensions = []string{".py"}

// DefinitionExtractor splits source files on a definition keyword and keeps each piece up to
// the first blank line.
//
// This is a textual heuristic. Bodies containing a blank line or a multi-line string are
// truncated early, and keyword occurrences inside identifiers or strings start spurious
// snippets.
type DefinitionExtractor struct {
	extensions map[string]bool
	keyword    string
	exclude    []string
	logger     *zap.Logger
}

// Option configures a DefinitionExtractor.
type Option func(*DefinitionExtractor)

// WithExtensions sets the file extensions to scan (with leading dot).
func WithExtensions(exts ...string) Option {
	return func(e *DefinitionExtractor) {
		if len(exts) == 0 {
			return
		}
		e.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			e.extensions[strings.ToLower(ext)] = true
		}
	}
}

// WithKeyword sets the definition keyword that starts a snippet.
func WithKeyword(keyword string) Option {
	return func(e *DefinitionExtractor) {
		if keyword != "" {
			e.keyword = keyword
		}
	}
}

// WithExclude sets doublestar patterns matched against slash paths relative to the root.
func WithExclude(patterns ...string) Option {
	return func(e *DefinitionExtractor) { e.exclude = append(e.exclude, patterns...) }
}

// WithLogger sets a logger for skipped files.
func WithLogger(l *zap.Logger) Option {
	return func(e *DefinitionExtractor) { e.logger = l }
}

// NewDefinitionExtractor returns an extractor for .py files split on "def " unless options say otherwise.
func NewDefinitionExtractor(opts ...Option) (*DefinitionExtractor, error) {
	e := &DefinitionExtractor{keyword: DefaultKeyword, logger: zap.NewNop()}
	WithExtensions(DefaultExtensions...)(e)
	for _, opt := range opts {
		opt(e)
	}
	for _, p := range e.exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// Extract walks root in lexical order and returns the snippets of every matching file.
// File paths are slash-separated and relative to root; repo is recorded on every snippet.
// Files that cannot be read are skipped with a warning. A missing root is an error.
func (e *DefinitionExtractor) Extract(ctx context.Context, root, repo string) ([]models.Snippet, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	var snippets []models.Snippet
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			e.logger.Warn("skip unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && e.excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !e.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			e.logger.Warn("skip unreadable file", zap.String("path", path), zap.Error(err))
			return nil
		}
		for _, code := range SplitDefinitions(decodeSource(content), e.keyword) {
			snippets = append(snippets, models.Snippet{Code: code, File: rel, Repo: repo})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	e.logger.Debug("extracted snippets", zap.String("repo", repo), zap.Int("count", len(snippets)))
	return snippets, nil
}

func (e *DefinitionExtractor) excluded(rel string) bool {
	for _, p := range e.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// SplitDefinitions splits source on keyword. Text before the first occurrence is dropped;
// each remaining piece is prefixed with keyword and cut at the first blank line.
func SplitDefinitions(source, keyword string) []string {
	if keyword == "" {
		return nil
	}
	pieces := strings.Split(source, keyword)
	if len(pieces) < 2 {
		return nil
	}
	out := make([]string, 0, len(pieces)-1)
	for _, piece := range pieces[1:] {
		if i := strings.Index(piece, blockTerminator); i >= 0 {
			piece = piece[:i]
		}
		out = append(out, keyword+piece)
	}
	return out
}
