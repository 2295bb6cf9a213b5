package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/minaoshi/internal/models"
	"go.uber.org/zap"
)

// Default GitHub endpoints.
const (
	DefaultAPIURL = "https://api.github.com"
	DefaultWebURL = "https://github.com"
)

// GitHubClient talks to the GitHub REST API and downloads branch archives.
type GitHubClient struct {
	apiURL     string
	webURL     string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// GitHubOption configures a GitHubClient.
type GitHubOption func(*GitHubClient)

// WithToken authenticates API calls with a bearer token.
func WithToken(token string) GitHubOption {
	return func(c *GitHubClient) { c.token = token }
}

// WithURLs overrides the API and web base URLs (GitHub Enterprise or tests).
func WithURLs(apiURL, webURL string) GitHubOption {
	return func(c *GitHubClient) {
		if apiURL != "" {
			c.apiURL = strings.TrimRight(apiURL, "/")
		}
		if webURL != "" {
			c.webURL = strings.TrimRight(webURL, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) GitHubOption {
	return func(c *GitHubClient) { c.httpClient = hc }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) GitHubOption {
	return func(c *GitHubClient) { c.logger = l }
}

// NewGitHubClient creates a client for github.com unless options say otherwise.
func NewGitHubClient(opts ...GitHubOption) *GitHubClient {
	c := &GitHubClient{
		apiURL:     DefaultAPIURL,
		webURL:     DefaultWebURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// RepoRef identifies a GitHub repository.
type RepoRef struct {
	Owner string
	Name  string
}

// FullName returns "owner/name".
func (r RepoRef) FullName() string { return r.Owner + "/" + r.Name }

// ParseRepoURL accepts "https://github.com/owner/name", an optional ".git" suffix or trailing
// slash, or the short form "owner/name".
func ParseRepoURL(raw string) (RepoRef, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(strings.TrimRight(s, "/"), ".git")
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return RepoRef{}, fmt.Errorf("parse repository url: %w", err)
		}
		s = strings.Trim(u.Path, "/")
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("invalid repository identifier %q", raw)
	}
	return RepoRef{Owner: parts[0], Name: parts[1]}, nil
}

// DefaultBranch returns the repository's default branch, or "main" when the API omits it.
func (c *GitHubClient) DefaultBranch(ctx context.Context, ref RepoRef) (string, error) {
	var meta struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.getJSON(ctx, c.apiURL+"/repos/"+ref.Owner+"/"+ref.Name, &meta); err != nil {
		return "", fmt.Errorf("fetch metadata for %s: %w", ref.FullName(), err)
	}
	if meta.DefaultBranch == "" {
		return "main", nil
	}
	return meta.DefaultBranch, nil
}

// Download fetches the default branch archive of ref and extracts it into dest, without the
// archive's top-level directory.
func (c *GitHubClient) Download(ctx context.Context, ref RepoRef, dest string) error {
	return c.download(ctx, ref, c.webURL+"/"+ref.Owner+"/"+ref.Name, dest)
}

func (c *GitHubClient) download(ctx context.Context, ref RepoRef, htmlURL, dest string) error {
	branch, err := c.DefaultBranch(ctx, ref)
	if err != nil {
		return err
	}
	archiveURL := strings.TrimRight(htmlURL, "/") + "/archive/refs/heads/" + url.PathEscape(branch) + ".zip"
	c.logger.Debug("downloading archive", zap.String("repo", ref.FullName()), zap.String("url", archiveURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", archiveURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s with branch %s: status %d", ref.FullName(), branch, resp.StatusCode)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(filepath.Clean(dest)), ".archive-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxArchiveBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save archive: %w", err)
	}
	if n > maxArchiveBytes {
		return fmt.Errorf("archive of %s is larger than %d bytes", ref.FullName(), maxArchiveBytes)
	}
	return extractZip(tmp.Name(), dest, true)
}

// SearchResult is one repository returned by SearchRepos.
type SearchResult struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	Stars    int    `json:"stargazers_count"`
}

// SearchRepos runs a repository search sorted by stars, paging until limit results are collected
// or the results run out.
func (c *GitHubClient) SearchRepos(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	var repos []SearchResult
	for page := 1; len(repos) < limit; page++ {
		params := url.Values{}
		params.Set("q", query)
		params.Set("sort", "stars")
		params.Set("order", "desc")
		params.Set("per_page", "30")
		params.Set("page", strconv.Itoa(page))

		var out struct {
			Items []SearchResult `json:"items"`
		}
		if err := c.getJSON(ctx, c.apiURL+"/search/repositories?"+params.Encode(), &out); err != nil {
			return nil, fmt.Errorf("search repositories: %w", err)
		}
		if len(out.Items) == 0 {
			break
		}
		repos = append(repos, out.Items...)
	}
	if len(repos) > limit {
		repos = repos[:limit]
	}
	return repos, nil
}

// FetchResult reports what FetchTop did with one repository.
type FetchResult struct {
	Repo    string
	Dir     string
	Skipped bool
	Err     error
}

// FetchTop downloads the top count repositories matching query into dest/<owner>-<name>.
// Repositories already present are skipped; a failed download does not stop the others.
func (c *GitHubClient) FetchTop(ctx context.Context, query string, count int, dest string) ([]FetchResult, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	repos, err := c.SearchRepos(ctx, query, count)
	if err != nil {
		return nil, err
	}
	results := make([]FetchResult, 0, len(repos))
	for _, r := range repos {
		dir := filepath.Join(dest, strings.ReplaceAll(r.FullName, "/", "-"))
		res := FetchResult{Repo: r.FullName, Dir: dir}
		if _, err := os.Stat(dir); err == nil {
			res.Skipped = true
			c.logger.Info("already present", zap.String("repo", r.FullName))
			results = append(results, res)
			continue
		}
		ref, err := ParseRepoURL(r.FullName)
		if err == nil {
			err = c.download(ctx, ref, r.HTMLURL, dir)
		}
		if err != nil {
			_ = os.RemoveAll(dir)
			res.Err = err
			c.logger.Warn("download failed", zap.String("repo", r.FullName), zap.Error(err))
		} else {
			c.logger.Info("downloaded", zap.String("repo", r.FullName), zap.String("dir", dir))
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *GitHubClient) getJSON(ctx context.Context, u string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("github API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// GitHubAcquirer downloads each requested repository into a fresh directory under workDir.
type GitHubAcquirer struct {
	client  *GitHubClient
	workDir string
}

// NewGitHubAcquirer creates an acquirer. An empty workDir uses the system temp directory.
func NewGitHubAcquirer(client *GitHubClient, workDir string) *GitHubAcquirer {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &GitHubAcquirer{client: client, workDir: workDir}
}

// Acquire downloads id into workDir/<uuid>. The checkout's Cleanup removes that directory.
func (a *GitHubAcquirer) Acquire(ctx context.Context, id string) (*Checkout, error) {
	ref, err := ParseRepoURL(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRepoUnavailable, err)
	}
	dir := filepath.Join(a.workDir, "minaoshi-"+uuid.NewString())
	if err := a.client.Download(ctx, ref, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: %v", models.ErrRepoUnavailable, err)
	}
	return &Checkout{
		Dir:     dir,
		Repo:    ref.FullName(),
		cleanup: func() error { return os.RemoveAll(dir) },
	}, nil
}
