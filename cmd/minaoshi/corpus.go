package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hyperjump/minaoshi/internal/cli"
	"github.com/hyperjump/minaoshi/internal/indexer"
	"github.com/hyperjump/minaoshi/internal/keyword"
	"github.com/hyperjump/minaoshi/internal/storage"
	"go.uber.org/zap"
)

func runCorpus() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: minaoshi corpus <fetch|build|search|status> [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	args := os.Args[3:]
	switch sub {
	case "fetch":
		runCorpusFetch(args)
	case "build":
		runCorpusBuild(args)
	case "search":
		runCorpusSearch(args)
	case "status":
		runCorpusStatus(args)
	default:
		fmt.Printf("Unknown corpus subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runCorpusFetch(args []string) {
	fs := flag.NewFlagSet("corpus fetch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dir := fs.String("dir", "", "destination directory (default from config)")
	query := fs.String("query", "", "GitHub repository search query (default from config)")
	count := fs.Int("count", 0, "number of repositories (default from config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, _, logger, _ := setup(*configPath, *debug)
	defer logger.Sync()

	dest := firstNonEmpty(*dir, cfg.Repo.FetchDir)
	q := firstNonEmpty(*query, cfg.Repo.FetchQuery)
	n := *count
	if n <= 0 {
		n = cfg.Repo.FetchCount
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		os.Exit(1)
	}

	gh := newGitHubClient(&cfg.Repo, logger)
	results, err := gh.FetchTop(context.Background(), q, n, dest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		os.Exit(1)
	}
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Printf("failed   %s: %v\n", r.Repo, r.Err)
		case r.Skipped:
			fmt.Printf("present  %s\n", r.Repo)
		default:
			fmt.Printf("fetched  %s -> %s\n", r.Repo, r.Dir)
		}
	}
	if size, err := storage.CodebaseDiskUsage(dest); err == nil {
		fmt.Printf("Codebase %s: %s\n", dest, cli.FormatBytes(size))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func runCorpusBuild(args []string) {
	fs := flag.NewFlagSet("corpus build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dir := fs.String("dir", "", "codebase directory; each subdirectory is one repository (default from config)")
	out := fs.String("out", "", "corpus file to write (default from config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, _, logger, debugMode := setup(*configPath, *debug)
	defer logger.Sync()

	root := firstNonEmpty(*dir, cfg.Repo.FetchDir)
	path := firstNonEmpty(*out, cfg.Storage.CorpusPath)

	dirs, err := indexer.RepoDirs(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}

	embedder, err := newEmbedder(&cfg.Embedding)
	if err != nil {
		logger.Fatal("Failed to initialize embedder", zap.Error(err))
	}
	defer embedder.Close()
	ext, err := newExtractor(&cfg.Extract, logger)
	if err != nil {
		logger.Fatal("Failed to initialize extractor", zap.Error(err))
	}
	opts := []indexer.BuilderOption{
		indexer.WithBatchSize(cfg.Embedding.BatchSize),
		indexer.WithIndexType(cfg.Vector.IndexType),
	}
	if debugMode {
		opts = append(opts, indexer.WithLogger(logger))
	}
	builder := indexer.NewBuilder(ext, embedder, opts...)

	start := time.Now()
	ctx := context.Background()
	c, err := builder.BuildDirectories(ctx, "global", dirs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	if err := storage.SaveFile(ctx, path, c); err != nil {
		fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
		os.Exit(1)
	}
	logger.Info("global corpus built",
		zap.String("path", path),
		zap.Int("repos", len(dirs)),
		zap.Int("snippets", c.Size()),
		zap.Duration("elapsed", time.Since(start)))
	fmt.Printf("Built %d snippets from %d repositories into %s\n", c.Size(), len(dirs), path)
}

func runCorpusSearch(args []string) {
	fs := flag.NewFlagSet("corpus search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read the corpus file directly)")
	limit := fs.Int("limit", 10, "number of results")
	repo := fs.String("repo", "", "only return snippets of this repository")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: minaoshi corpus search [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	if *serverURL != "" {
		resp, err := searchViaHTTP(*serverURL, query, *limit, *repo, *fuzzy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearch(os.Stdout, resp, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, logger, _ := setup(*configPath, false)
	defer logger.Sync()

	ctx := context.Background()
	c, err := storage.LoadFile(ctx, cfg.Storage.CorpusPath, cfg.Vector.IndexType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load corpus: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	searcher := keyword.NewCorpusSearcher(cfg.Extract.Keyword)
	defer searcher.Close()
	resp, err := searcher.Search(ctx, c, query, *limit, &keyword.SearchOptions{
		NameBoost:    3,
		Repo:         *repo,
		FuzzyEnabled: *fuzzy,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearch(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runCorpusStatus(args []string) {
	fs := flag.NewFlagSet("corpus status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format := parseFormat(*outputFormat)
	cfg, _, logger, _ := setup(*configPath, false)
	defer logger.Sync()

	if _, err := os.Stat(cfg.Storage.CorpusPath); err != nil {
		fmt.Fprintf(os.Stderr, "No corpus at %s (run \"minaoshi corpus build\")\n", cfg.Storage.CorpusPath)
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.CorpusPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open corpus: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	st, err := store.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	disk, err := storage.CorpusDiskUsage(cfg.Storage.CorpusPath)
	if err != nil {
		logger.Warn("disk usage unavailable", zap.Error(err))
	}
	if err := cli.WriteStats(os.Stdout, st, disk, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
