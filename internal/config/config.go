// Package config provides configuration loading and structs for the minaoshi server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Extract   ExtractConfig   `yaml:"extract"`
	Review    ReviewConfig    `yaml:"review"`
	Repo      RepoConfig      `yaml:"repo"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the path of the persisted global corpus.
type StorageConfig struct {
	CorpusPath string `yaml:"corpus_path"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // onnx, ollama or mock
	ModelPath   string `yaml:"model_path"`
	VocabPath   string `yaml:"vocab_path"`
	MergesPath  string `yaml:"merges_path"`
	Dimensions  int    `yaml:"dimensions"`
	MaxTokens   int    `yaml:"max_tokens"`
	CacheSize   int    `yaml:"cache_size"`
	BatchSize   int    `yaml:"batch_size"`
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
	OllamaToken string `yaml:"ollama_token"`
}

// VectorConfig selects the vector index implementation.
type VectorConfig struct {
	IndexType string `yaml:"index_type"` // memory or faiss
}

// RetrievalConfig holds the default match bounds.
type RetrievalConfig struct {
	KLocal  int `yaml:"k_local"`
	KGlobal int `yaml:"k_global"`
}

// ExtractConfig configures snippet extraction.
type ExtractConfig struct {
	Extensions []string `yaml:"extensions"`
	Keyword    string   `yaml:"keyword"`
	Exclude    []string `yaml:"exclude"`
}

// ReviewConfig configures the chat completions endpoint. APIKey is normally supplied by the
// environment rather than the file.
type ReviewConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	APIKey      string   `yaml:"api_key"`
	TimeoutSecs int      `yaml:"timeout_seconds"`
}

// TemperatureOrDefault returns the configured temperature or 0.5.
func (r *ReviewConfig) TemperatureOrDefault() float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return 0.5
}

// RepoConfig configures repository acquisition and the corpus fetch command.
type RepoConfig struct {
	APIURL     string `yaml:"api_url"`
	WebURL     string `yaml:"web_url"`
	Token      string `yaml:"token"`
	WorkDir    string `yaml:"work_dir"`
	AllowLocal bool   `yaml:"allow_local"`
	FetchQuery string `yaml:"fetch_query"`
	FetchCount int    `yaml:"fetch_count"`
	FetchDir   string `yaml:"fetch_dir"`
}

// WatchConfig controls hot reload of the global corpus.
type WatchConfig struct {
	Enabled        *bool `yaml:"enabled"`
	DebounceMillis int   `yaml:"debounce_ms"`
}

// EnabledOrDefault returns whether to watch the corpus file; defaults to true when unset.
func (w *WatchConfig) EnabledOrDefault() bool {
	if w.Enabled != nil {
		return *w.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies defaults and
// environment overrides. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.CorpusPath = expandPath(cfg.Storage.CorpusPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	cfg.Embedding.MergesPath = expandPath(cfg.Embedding.MergesPath, configDir)
	cfg.Repo.FetchDir = expandPath(cfg.Repo.FetchDir, configDir)
	if cfg.Repo.WorkDir != "" {
		cfg.Repo.WorkDir = expandPath(cfg.Repo.WorkDir, configDir)
	}

	return &cfg, nil
}

// Default returns the default configuration with environment overrides, for running without
// a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg
}

// ApplyEnv fills secrets from the environment when set: OPENAI_API_KEY (or OPEN_API_KEY) and
// GITHUB_TOKEN (or GITHUB_KEY).
func ApplyEnv(cfg *Config) {
	if v := firstEnv("OPENAI_API_KEY", "OPEN_API_KEY"); v != "" {
		cfg.Review.APIKey = v
	}
	if v := firstEnv("GITHUB_TOKEN", "GITHUB_KEY"); v != "" {
		cfg.Repo.Token = v
	}
	if v := os.Getenv("OLLAMA_API_KEY"); v != "" {
		cfg.Embedding.OllamaToken = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// Save writes the config to path. Secrets are not written.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Review.APIKey = ""
	out.Repo.Token = ""
	out.Embedding.OllamaToken = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
