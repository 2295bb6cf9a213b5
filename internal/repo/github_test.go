package repo

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/hyperjump/minaoshi/internal/models"
)

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fakeGitHub struct {
	t        *testing.T
	srv      *httptest.Server
	archives map[string][]byte // "owner/name" -> zip of branch "dev"
	searches int
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	f := &fakeGitHub{t: t, archives: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/repos/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[len("/api/repos/"):]
		if _, ok := f.archives[name]; !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"default_branch": "dev"})
	})
	mux.HandleFunc("/api/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		f.searches++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var items []SearchResult
		if page == 1 {
			for _, n := range []string{"octo/one", "octo/two", "octo/missing"} {
				items = append(items, SearchResult{FullName: n, HTMLURL: f.srv.URL + "/web/" + n})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
	})
	mux.HandleFunc("/web/", func(w http.ResponseWriter, r *http.Request) {
		for name, data := range f.archives {
			if r.URL.Path == "/web/"+name+"/archive/refs/heads/dev.zip" {
				_, _ = w.Write(data)
				return
			}
		}
		http.NotFound(w, r)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGitHub) client() *GitHubClient {
	return NewGitHubClient(WithURLs(f.srv.URL+"/api", f.srv.URL+"/web"), WithToken("t"))
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		in      string
		want    RepoRef
		wantErr bool
	}{
		{"https://github.com/octo/hello", RepoRef{"octo", "hello"}, false},
		{"https://github.com/octo/hello.git", RepoRef{"octo", "hello"}, false},
		{"https://github.com/octo/hello/", RepoRef{"octo", "hello"}, false},
		{"octo/hello", RepoRef{"octo", "hello"}, false},
		{"https://github.com/octo", RepoRef{}, true},
		{"", RepoRef{}, true},
	}
	for _, tt := range tests {
		got, err := ParseRepoURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRepoURL(%q) err=%v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRepoURL(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestGitHubAcquirer_Acquire(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.archives["octo/hello"] = makeZip(t, map[string]string{
		"hello-dev/app.py":     "def main():\n    pass\n",
		"hello-dev/pkg/lib.py": "def lib():\n    pass\n",
	})
	work := t.TempDir()
	a := NewGitHubAcquirer(gh.client(), work)

	co, err := a.Acquire(context.Background(), "https://github.com/octo/hello.git")
	if err != nil {
		t.Fatal(err)
	}
	if co.Repo != "octo/hello" {
		t.Errorf("Repo=%q", co.Repo)
	}
	if _, err := os.Stat(filepath.Join(co.Dir, "pkg", "lib.py")); err != nil {
		t.Errorf("archive top-level directory should be stripped: %v", err)
	}

	other, err := a.Acquire(context.Background(), "octo/hello")
	if err != nil {
		t.Fatal(err)
	}
	if other.Dir == co.Dir {
		t.Error("each request must get its own directory")
	}

	if err := co.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(co.Dir); !os.IsNotExist(err) {
		t.Error("cleanup should remove the checkout")
	}
	_ = other.Cleanup()
}

func TestGitHubAcquirer_Unavailable(t *testing.T) {
	gh := newFakeGitHub(t)
	work := t.TempDir()
	a := NewGitHubAcquirer(gh.client(), work)

	for _, id := range []string{"octo/nothere", "not a repo"} {
		_, err := a.Acquire(context.Background(), id)
		if !errors.Is(err, models.ErrRepoUnavailable) {
			t.Errorf("Acquire(%q): expected ErrRepoUnavailable, got %v", id, err)
		}
	}
	entries, _ := os.ReadDir(work)
	if len(entries) != 0 {
		t.Errorf("failed acquisitions left %d entries in work dir", len(entries))
	}
}

func TestFetchTop(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.archives["octo/one"] = makeZip(t, map[string]string{"one-dev/a.py": "def a(): pass"})
	gh.archives["octo/two"] = makeZip(t, map[string]string{"two-dev/b.py": "def b(): pass"})
	dest := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dest, "octo-two"), 0o755); err != nil {
		t.Fatal(err)
	}

	results, err := gh.client().FetchTop(context.Background(), "language:Python", 3, dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Err != nil || results[0].Skipped {
		t.Errorf("octo/one: %+v", results[0])
	}
	if !results[1].Skipped {
		t.Errorf("octo/two should be skipped: %+v", results[1])
	}
	if results[2].Err == nil {
		t.Errorf("octo/missing should fail: %+v", results[2])
	}
	if _, err := os.Stat(filepath.Join(dest, "octo-one", "a.py")); err != nil {
		t.Errorf("octo/one not extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "octo-missing")); !os.IsNotExist(err) {
		t.Error("failed download should not leave a directory")
	}
}

func TestSearchRepos_Limit(t *testing.T) {
	gh := newFakeGitHub(t)
	repos, err := gh.client().SearchRepos(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 2 || repos[0].FullName != "octo/one" {
		t.Errorf("got %+v", repos)
	}
}

func TestExtractZip_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	if err := os.WriteFile(archive, makeZip(t, map[string]string{"../evil.py": "x"}), 0o600); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "out")
	if err := extractZip(archive, dest, false); err == nil {
		t.Error("expected traversal to be rejected")
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.py")); !os.IsNotExist(err) {
		t.Error("file escaped destination")
	}
}

func TestLocalAcquirerAndRouter(t *testing.T) {
	dir := t.TempDir()
	co, err := LocalAcquirer{}.Acquire(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := co.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("local checkout must not be removed")
	}
	if _, err := (LocalAcquirer{}).Acquire(context.Background(), filepath.Join(dir, "nope")); !errors.Is(err, models.ErrRepoUnavailable) {
		t.Errorf("expected ErrRepoUnavailable, got %v", err)
	}

	r := Router{Local: LocalAcquirer{}}
	if co, err := r.Acquire(context.Background(), dir); err != nil || co.Dir != dir {
		t.Errorf("router local: %v %+v", err, co)
	}
	if _, err := r.Acquire(context.Background(), "octo/hello"); !errors.Is(err, models.ErrRepoUnavailable) {
		t.Errorf("router without remote: %v", err)
	}
	remoteOnly := Router{}
	if _, err := remoteOnly.Acquire(context.Background(), dir); !errors.Is(err, models.ErrRepoUnavailable) {
		t.Errorf("local paths must be refused when Local is nil: %v", err)
	}
}
