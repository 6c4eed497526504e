// Package main is the kbase CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/cli"
	"github.com/hyperjump/kbase/internal/config"
	"github.com/hyperjump/kbase/internal/inbox"
	"github.com/hyperjump/kbase/internal/ingest"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kbase/config.yaml"

// loadConfig loads config from path. When path is the default, ./config.yaml is
// preferred if it exists; when the default file is missing too, built-in defaults
// plus environment overrides are used. Returns the config and the path that was
// actually loaded ("" for built-in defaults).
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
	}
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if path != defaultConfigPath || !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}
	cfg = &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "fetch":
		runFetch()
	case "search":
		runSearch()
	case "list":
		runList()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kbase version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds a logger; it exits on failure.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

// openComponents is setup plus initializeComponents; it exits on failure.
func openComponents(configPath string) (*config.Config, *zap.Logger, *Components) {
	cfg, _, logger := setup(configPath, false)
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, components
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", what, err)
	os.Exit(1)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
		zap.String("vector_store", cfg.VectorStore.Backend),
		zap.String("embedding", cfg.Embedding.Backend),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// The vector store also initializes lazily; warm it up so problems show in the log early.
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := components.Vectors.Init(initCtx); err != nil {
		logger.Warn("vector store not ready; will retry on first use", zap.Error(err))
	}
	initCancel()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var box *inbox.Inbox
	if cfg.Inbox.Directory != "" {
		box = inbox.New(cfg.Inbox.Directory, cfg.Inbox.Extensions, components.Documents, inbox.WithLogger(logger))
		if err := box.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start inbox", zap.Error(err))
		}
		go func() {
			if err := box.SyncExisting(watchCtx); err != nil {
				logger.Warn("inbox sync failed", zap.Error(err))
			}
		}()
	}

	srv := components.NewServer(cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if box != nil {
		box.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	workers := fs.Int("workers", 4, "number of files ingested in parallel")
	userID := fs.String("user", "", "user id recorded on every document")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kbase ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	cfg, logger, components := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	files, err := ingest.CollectFiles(fs.Args(), cfg.Inbox.Extensions)
	if err != nil {
		fail("Collecting files", err)
	}
	if len(files) == 0 {
		fmt.Println("No files to ingest.")
		return
	}

	outcomes, err := ingestFiles(context.Background(), components.Documents, files, optionalString(*userID), *workers)
	if err != nil {
		fail("Ingest", err)
	}
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", o.Path, o.Err)
			continue
		}
		_ = cli.WriteDocument(os.Stdout, o.Document, format)
	}
	if format == cli.OutputText {
		fmt.Printf("Ingested %d of %d file(s)\n", len(outcomes)-failed, len(outcomes))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func runFetch() {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = open the stores directly)")
	cookies := fs.String("cookies", "", `cookies sent with the page request, "name=value; name2=value2"`)
	userID := fs.String("user", "", "user id recorded on the document")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Println("Usage: kbase fetch [flags] <url>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	ctx := context.Background()

	var (
		doc *models.Document
		err error
	)
	if *serverURL != "" {
		doc, err = cli.NewClient(*serverURL, 0).IngestURL(ctx, fs.Arg(0), *cookies)
	} else {
		_, logger, components := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		doc, err = components.Documents.IngestURL(ctx, fs.Arg(0), *cookies, optionalString(*userID))
	}
	if err != nil {
		fail("Fetch", err)
	}
	_ = cli.WriteDocument(os.Stdout, doc, format)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kbase search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results combine semantic similarity with keyword matching; queries whose every
word appears in a fragment weigh keywords more.

Examples:
  kbase search golang distributed systems
  kbase search --min-confidence 0.5 --limit 10 kubernetes operator
  kbase search --server http://localhost:8080 --output json "site reliability"
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse() sees them.
func reorderArgs(args []string) []string {
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

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = open the stores directly)")
	limit := fs.Int("limit", 0, "number of results (default from config)")
	minConfidence := fs.Float64("min-confidence", -1, "minimum hybrid confidence between 0 and 1 (default from config)")
	userID := fs.String("user", "", "only search documents of this user")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	query := newSearchQuery(queryStr, *limit, *minConfidence, *userID)
	ctx := context.Background()

	var (
		response *models.SearchResponse
		err      error
	)
	if *serverURL != "" {
		response, err = cli.NewClient(*serverURL, 0).Search(ctx, query)
	} else {
		_, logger, components := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		response, err = components.Search.Search(ctx, query)
	}
	if err != nil {
		fail("Search", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fail("Output", err)
	}
}

// newSearchQuery builds a query from flag values; a negative minConfidence means unset.
func newSearchQuery(text string, limit int, minConfidence float64, userID string) *models.SearchQuery {
	q := &models.SearchQuery{Query: text, Limit: limit}
	if minConfidence >= 0 {
		v := minConfidence
		q.MinConfidence = &v
	}
	if userID != "" {
		q.Filters = map[string]interface{}{"user_id": userID}
	}
	return q
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = open the stores directly)")
	offset := fs.Int("offset", 0, "number of documents to skip")
	limit := fs.Int("limit", 50, "maximum number of documents")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)
	ctx := context.Background()

	var (
		docs []*models.Document
		err  error
	)
	if *serverURL != "" {
		docs, err = cli.NewClient(*serverURL, 0).ListDocuments(ctx, *offset, *limit)
	} else {
		_, logger, components := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		docs, err = components.Storage.ListDocuments(ctx, *offset, *limit)
	}
	if err != nil {
		fail("List", err)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fail("Output", err)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = open the stores directly)")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kbase delete [flags] <document-id>...")
		os.Exit(1)
	}
	ctx := context.Background()

	var deleteFn func(ctx context.Context, id string) error
	if *serverURL != "" {
		deleteFn = cli.NewClient(*serverURL, 0).DeleteDocument
	} else {
		_, logger, components := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		deleteFn = components.Documents.Delete
	}
	failed := false
	for _, id := range fs.Args() {
		if err := deleteFn(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Delete %s failed: %v\n", id, err)
			failed = true
			continue
		}
		fmt.Printf("Deleted: %s\n", id)
	}
	if failed {
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = open the stores directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)
	ctx := context.Background()

	var (
		status *models.SystemStatus
		err    error
	)
	if *serverURL != "" {
		status, err = cli.NewClient(*serverURL, 0).Status(ctx)
	} else {
		_, logger, components := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		status, err = components.Status.Report(ctx)
	}
	if err != nil {
		fail("Status", err)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fail("Output", err)
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func printUsage() {
	fmt.Print(`kbase - knowledge base ingestion and hybrid search

Usage:
  kbase server [--config path] [--debug]     Start the HTTP API (and the inbox, if configured)
  kbase ingest [flags] <file-or-dir>...      Ingest files; directories are walked
  kbase fetch [flags] <url>                  Render a web page and ingest it
  kbase search [flags] <query>               Hybrid search
  kbase list [flags]                         List documents, newest first
  kbase delete [flags] <document-id>...      Delete documents and their vectors
  kbase status [flags]                       Show counts, vector store and disk usage
  kbase version                              Show version
  kbase help                                 Show this help

search, list, delete, fetch and status accept --server <url> to go through a running server.

Environment (also read from .env):
  QDRANT_HOST, QDRANT_PORT, QDRANT_API_KEY, COLLECTION_NAME,
  EMBEDDING_MODEL, EMBEDDING_HOST, MIN_CONFIDENCE, CHUNK_SIZE, CHUNK_OVERLAP
`)
}
