// Package main is the minaoshi CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/minaoshi/internal/cli"
	"github.com/hyperjump/minaoshi/internal/config"
	"github.com/hyperjump/minaoshi/internal/models"
	"github.com/hyperjump/minaoshi/internal/server"
	"github.com/hyperjump/minaoshi/internal/watcher"
	"github.com/hyperjump/minaoshi/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/minaoshi/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence, and a missing default file yields the built-in defaults.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "review":
		runReview()
	case "corpus":
		runCorpus()
	case "version", "--version", "-v":
		fmt.Printf("minaoshi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger shared by every subcommand.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger, bool) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger, debugMode
}

func parseFormat(s string) cli.OutputFormat {
	switch s {
	case "json":
		return cli.OutputJSON
	case "text":
		return cli.OutputText
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", s)
		os.Exit(1)
		return cli.OutputText
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, debugMode := setup(*configPath, *debug)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var reloader server.Reloader
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.EnabledOrDefault() {
		load := corpusLoader(cfg.Vector.IndexType, components.Embedder.Dimensions())
		watchSvc := watcher.NewWatcher(cfg.Storage.CorpusPath, load, components.Global,
			watcher.WithLogger(logger),
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond),
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		reloader = watchSvc
	}

	srv := server.NewServer(components.Service, cfg, reloader, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// readCode returns the code to review from -code, -code-file, or stdin, in that order.
func readCode(code, codeFile string, stdin io.Reader) (string, error) {
	if code != "" {
		return code, nil
	}
	if codeFile != "" {
		b, err := os.ReadFile(codeFile)
		if err != nil {
			return "", fmt.Errorf("read code file: %w", err)
		}
		return string(b), nil
	}
	if stdin == nil {
		return "", errors.New("no code given")
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", errors.New("no code given")
	}
	return string(b), nil
}

func runReview() {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = run the review in this process)")
	repoURL := fs.String("repo", "", "repository URL or owner/name used as local context")
	currentFile := fs.String("file", "", "restrict local matches to this file (relative path)")
	code := fs.String("code", "", "code to review")
	codeFile := fs.String("code-file", "", "read the code to review from this file (default: stdin)")
	kLocal := fs.Int("k-local", 0, "number of local matches (0 = config default)")
	kGlobal := fs.Int("k-global", 0, "number of global matches (0 = config default)")
	promptOnly := fs.Bool("prompt-only", false, "print the assembled prompt without calling the model")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	format := parseFormat(*outputFormat)
	newCode, err := readCode(*code, *codeFile, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Review failed: %v\n", err)
		os.Exit(1)
	}
	req := &models.ReviewRequest{
		RepoURL:     *repoURL,
		NewCode:     newCode,
		CurrentFile: *currentFile,
		KLocal:      *kLocal,
		KGlobal:     *kGlobal,
	}
	if err := req.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Review failed: %v\n", err)
		os.Exit(1)
	}

	if *serverURL != "" && !*promptOnly {
		resp, err := reviewViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Review failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteReview(os.Stdout, resp, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, logger, debugMode := setup(*configPath, *debug)
	defer logger.Sync()

	components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if *promptOnly {
		prepared, err := components.Service.Prepare(ctx, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Review failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WritePrompt(os.Stdout, prepared.Prompt, prepared.Retrieval.Local, prepared.Retrieval.Global, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	resp, err := components.Service.Review(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Review failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteReview(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func reviewViaHTTP(serverURL string, req *models.ReviewRequest) (*models.ReviewResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/review", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.ReviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse sees them. The flag package stops at the
// first non-flag argument, so "minaoshi corpus search parse -limit 5" would otherwise
// leave -limit unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func searchViaHTTP(serverURL, query string, limit int, repo string, fuzzy bool) (*models.CorpusSearchResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", fmt.Sprint(limit))
	if repo != "" {
		params.Set("repo", repo)
	}
	if fuzzy {
		params.Set("fuzzy", "true")
	}
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/corpus/search?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.CorpusSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func printUsage() {
	fmt.Println(`minaoshi - Code review with local and global retrieval context

Usage:
  minaoshi server [flags]                 Start the HTTP server
  minaoshi review [flags]                 Review a snippet against a repository
  minaoshi corpus fetch [flags]           Download top GitHub repositories for the global corpus
  minaoshi corpus build [flags]           Extract, embed and persist the global corpus
  minaoshi corpus search [flags] <query>  Keyword search over the global corpus
  minaoshi corpus status [flags]          Show the persisted global corpus
  minaoshi version                        Show version
  minaoshi help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/minaoshi/config.yaml)
  --debug            Enable debug logging

Review Flags:
  --repo string       Repository URL or owner/name (local directory when repo.allow_local is set)
  --code string       Code to review (default: read --code-file or stdin)
  --code-file string  File containing the code to review
  --file string       Only use local matches from this file
  --k-local int       Local matches (default from config)
  --k-global int      Global matches (default from config)
  --prompt-only       Print the prompt instead of calling the model
  --server string     Send the request to a running server
  --output string     Output format: text or json (default: text)

Corpus Flags:
  --config string    Config file path
  --dir string       Codebase directory (fetch, build; default from config)
  --query string     GitHub search query (fetch)
  --count int        Number of repositories (fetch)
  --limit int        Number of results (search)
  --repo string      Only search snippets of this repository (search)
  --fuzzy            Typo tolerant search (search)
  --server string    Search through a running server (search)

Examples:
  minaoshi corpus fetch --count 5
  minaoshi corpus build
  minaoshi server
  minaoshi review --repo octocat/hello-world --file app.py --code-file new.py
  echo 'def f(): pass' | minaoshi review --repo https://github.com/acme/app --prompt-only
  minaoshi corpus search parse_config --limit 5
  minaoshi corpus status --output json`)
}
