package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.CorpusPath == "" {
		cfg.Storage.CorpusPath = "/usr/local/var/minaoshi/data/corpus.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/minaoshi/data/models/codebert-base.onnx"
	}
	if cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = "/usr/local/var/minaoshi/data/models/vocab.json"
	}
	if cfg.Embedding.MergesPath == "" {
		cfg.Embedding.MergesPath = "/usr/local/var/minaoshi/data/models/merges.txt"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 16
	}
	if cfg.Embedding.OllamaURL == "" {
		cfg.Embedding.OllamaURL = "http://localhost:11434"
	}
	if cfg.Embedding.OllamaModel == "" {
		cfg.Embedding.OllamaModel = "nomic-embed-text"
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Retrieval.KLocal == 0 {
		cfg.Retrieval.KLocal = 3
	}
	if cfg.Retrieval.KGlobal == 0 {
		cfg.Retrieval.KGlobal = 2
	}
	if cfg.Extract.Extensions == nil {
		cfg.Extract.Extensions = []string{".py"}
	}
	if cfg.Extract.Keyword == "" {
		cfg.Extract.Keyword = "def "
	}
	if cfg.Review.BaseURL == "" {
		cfg.Review.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Review.Model == "" {
		cfg.Review.Model = "gpt-4o-mini"
	}
	if cfg.Review.MaxTokens == 0 {
		cfg.Review.MaxTokens = 500
	}
	if cfg.Review.TimeoutSecs == 0 {
		cfg.Review.TimeoutSecs = 60
	}
	if cfg.Repo.APIURL == "" {
		cfg.Repo.APIURL = "https://api.github.com"
	}
	if cfg.Repo.WebURL == "" {
		cfg.Repo.WebURL = "https://github.com"
	}
	if cfg.Repo.FetchQuery == "" {
		cfg.Repo.FetchQuery = "language:python"
	}
	if cfg.Repo.FetchCount == 0 {
		cfg.Repo.FetchCount = 10
	}
	if cfg.Repo.FetchDir == "" {
		cfg.Repo.FetchDir = "/usr/local/var/minaoshi/data/global_codebase"
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = 400
	}
}
