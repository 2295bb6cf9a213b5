package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearSecrets(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "OPEN_API_KEY", "GITHUB_TOKEN", "GITHUB_KEY", "OLLAMA_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  corpus_path: "./test.db"
retrieval:
  k_local: 5
review:
  temperature: 0
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if !filepath.IsAbs(cfg.Storage.CorpusPath) {
		t.Errorf("corpus_path should be absolute, got %s", cfg.Storage.CorpusPath)
	}
	if cfg.Retrieval.KLocal != 5 || cfg.Retrieval.KGlobal != 2 {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if got := cfg.Review.TemperatureOrDefault(); got != 0 {
		t.Errorf("explicit zero temperature should be kept, got %v", got)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  corpus_path: "./data/corpus.db"
repo:
  fetch_dir: "./global"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "corpus.db"); cfg.Storage.CorpusPath != want {
		t.Errorf("corpus_path = %s, want %s", cfg.Storage.CorpusPath, want)
	}
	if want := filepath.Join(dir, "global"); cfg.Repo.FetchDir != want {
		t.Errorf("fetch_dir = %s, want %s", cfg.Repo.FetchDir, want)
	}
	if cfg.Repo.WorkDir != "" {
		t.Errorf("empty work_dir should stay empty (system temp), got %s", cfg.Repo.WorkDir)
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestApplyEnv(t *testing.T) {
	clearSecrets(t)
	t.Setenv("OPEN_API_KEY", "sk-legacy")
	t.Setenv("GITHUB_KEY", "gh-legacy")
	cfg := Default()
	if cfg.Review.APIKey != "sk-legacy" || cfg.Repo.Token != "gh-legacy" {
		t.Errorf("fallback env names not applied: %q %q", cfg.Review.APIKey, cfg.Repo.Token)
	}

	t.Setenv("OPENAI_API_KEY", "sk-new")
	t.Setenv("GITHUB_TOKEN", "gh-new")
	cfg = Default()
	if cfg.Review.APIKey != "sk-new" || cfg.Repo.Token != "gh-new" {
		t.Errorf("preferred env names not applied: %q %q", cfg.Review.APIKey, cfg.Repo.Token)
	}
}

func TestSave_omitsSecrets(t *testing.T) {
	clearSecrets(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := Default()
	cfg.Review.APIKey = "sk-secret"
	cfg.Repo.Token = "gh-secret"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Review.APIKey != "" || loaded.Repo.Token != "" {
		t.Error("secrets must not be persisted")
	}
	if cfg.Review.APIKey != "sk-secret" {
		t.Error("Save must not modify its argument")
	}
	if loaded.Server.Port != cfg.Server.Port || loaded.Review.Model != "gpt-4o-mini" {
		t.Errorf("round trip lost settings: %+v", loaded)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Embedding.Provider != "onnx" || cfg.Embedding.Dimensions != 768 || cfg.Embedding.BatchSize != 16 {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Vector.IndexType != "memory" {
		t.Errorf("index type: %s", cfg.Vector.IndexType)
	}
	if cfg.Retrieval.KLocal != 3 || cfg.Retrieval.KGlobal != 2 {
		t.Errorf("retrieval defaults: %+v", cfg.Retrieval)
	}
	if len(cfg.Extract.Extensions) != 1 || cfg.Extract.Extensions[0] != ".py" || cfg.Extract.Keyword != "def " {
		t.Errorf("extract defaults: %+v", cfg.Extract)
	}
	if cfg.Review.Model != "gpt-4o-mini" || cfg.Review.MaxTokens != 500 || cfg.Review.TemperatureOrDefault() != 0.5 {
		t.Errorf("review defaults: %+v", cfg.Review)
	}
	if !cfg.Watch.EnabledOrDefault() {
		t.Error("watch should default to enabled")
	}
	if cfg.Repo.AllowLocal {
		t.Error("local repositories should be disabled by default")
	}
}
