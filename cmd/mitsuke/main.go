// Package main is the Mitsuke CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/cli"
	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/embedding"
	"github.com/hyperjump/mitsuke/internal/indexer"
	"github.com/hyperjump/mitsuke/internal/metadata"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/search"
	"github.com/hyperjump/mitsuke/internal/server"
	"github.com/hyperjump/mitsuke/internal/stats"
	"github.com/hyperjump/mitsuke/internal/storage"
	"github.com/hyperjump/mitsuke/internal/vector"
	"github.com/hyperjump/mitsuke/internal/watcher"
	"github.com/hyperjump/mitsuke/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/mitsuke/config.yaml"
	defaultServerURL  = "http://localhost:5001"
)

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "mitsuke server" from the project dir uses the project's
// config (including debug).
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
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
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
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "delete":
		runDelete()
	case "version", "--version", "-v":
		fmt.Printf("mitsuke version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (watch events, query details, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := components.Indexer.Load(); err != nil {
		logger.Fatal("Failed to load catalog artifacts", zap.Error(err))
	}

	idx := components.Indexer
	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				ingestWatchedFile(components, logger, path)
			},
			func(path string) {
				if err := idx.Delete(context.Background(), filepath.Base(path)); err != nil {
					logger.Debug("watch delete skipped", zap.String("path", path), zap.Error(err))
				}
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Pipeline,
		components.Indexer,
		components.Vectors,
		components.Meta,
		components.Stats,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	idx.Wait()
	if err := idx.Persist(); err != nil {
		logger.Warn("artifact save on shutdown failed", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// ingestWatchedFile adds a file dropped into a watched directory, skipping
// paths whose basename is already in the catalog so SyncExistingFiles does
// not duplicate items across restarts.
func ingestWatchedFile(components *Components, logger *zap.Logger, path string) {
	storedPath := components.Images.PathFor(filepath.Base(path))
	if components.Vectors.Contains(storedPath) {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("watch ingest open failed", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := components.Indexer.Add(context.Background(), filepath.Base(path), f, nil); err != nil {
		logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	category := fs.String("category", "", "category to set on every ingested image")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: mitsuke ingest [flags] <image-file-or-directory>")
		os.Exit(1)
	}
	target := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()
	if err := components.Indexer.Load(); err != nil {
		fmt.Printf("Failed to load catalog artifacts: %v\n", err)
		os.Exit(1)
	}

	var extra models.Metadata
	if *category != "" {
		extra = models.Metadata{"category": *category}
	}

	files, err := collectImageFiles(target, cfg.Watch.Extensions)
	if err != nil {
		fmt.Printf("Failed to read %s: %v\n", target, err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No image files found in %s\n", target)
		os.Exit(1)
	}

	ctx := context.Background()
	bar := progressbar.Default(int64(len(files)), "indexing images")
	added, skipped, failed := 0, 0, 0
	for _, path := range files {
		_ = bar.Add(1)
		if components.Vectors.Contains(components.Images.PathFor(filepath.Base(path))) {
			skipped++
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			failed++
			continue
		}
		_, err = components.Indexer.Add(ctx, filepath.Base(path), f, extra)
		f.Close()
		if err != nil {
			failed++
			continue
		}
		added++
	}
	if err := components.Indexer.Persist(); err != nil {
		fmt.Printf("Failed to save artifacts: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nIngested %d image(s) (%d skipped, %d failed), index size %d (%s)\n",
		added, skipped, failed, components.Vectors.Size(), components.Vectors.Type())
}

// collectImageFiles returns the matching files under target, which may be a
// single file or a directory tree.
func collectImageFiles(target string, extensions []string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{target}, nil
	}
	var files []string
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range extensions {
			if strings.ToLower(e) == ext {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	return files, err
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	topK := fs.Int("top-k", 10, "number of results")
	threshold := fs.Float64("threshold", 0, "minimum similarity score (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: mitsuke search [flags] <description>")
		os.Exit(1)
	}
	queryStr := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if queryStr == "" {
		fmt.Println("Usage: mitsuke search [flags] <description>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	query := models.TextQuery{Query: queryStr, TopK: *topK}
	if *threshold != 0 {
		query.Threshold = threshold
	}
	body, err := json.Marshal(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.Post(*serverURL+"/search-by-text", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var response models.TextSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteTextSearchResults(os.Stdout, &response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// statsResponse mirrors the shape of GET /stats for CLI display.
type statsResponse struct {
	Queries stats.Snapshot `json:"queries"`
	Index   struct {
		Size       int    `json:"size"`
		Type       string `json:"type"`
		Dimensions int    `json:"dimensions"`
		Items      int    `json:"items"`
	} `json:"index"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	resp, err := http.Get(*serverURL + "/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
		os.Exit(1)
	}

	if format == cli.OutputJSON {
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Printf("index_size:      %d   # images in the vector index\n", status.Index.Size)
	fmt.Printf("index_type:      %s\n", status.Index.Type)
	fmt.Printf("dimensions:      %d\n", status.Index.Dimensions)
	fmt.Printf("total_queries:   %d\n", status.Queries.TotalQueries)
	if status.Queries.WindowSize > 0 {
		fmt.Printf("avg_latency_ms:  %.2f   # over last %d queries\n",
			status.Queries.Latency.AvgMs, status.Queries.WindowSize)
		fmt.Printf("p95_latency_ms:  %.2f\n", status.Queries.Latency.P95Ms)
	}
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage:      %d bytes\n", *status.DiskUsageBytes)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: mitsuke delete [flags] <filename>")
		os.Exit(1)
	}
	filename := fs.Arg(0)

	body, _ := json.Marshal(models.DeleteRequest{Filename: filename})
	resp, err := http.Post(*serverURL+"/delete", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("Deleted: %s\n", filename)
}

// Components holds initialized services.
type Components struct {
	Embedder *embedding.CachedEmbedder
	Vectors  *vector.Manager
	Meta     *metadata.Store
	Images   *storage.ImageStore
	Indexer  *indexer.Indexer
	Pipeline *search.Pipeline
	Stats    *stats.Collector
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	var inner embedding.Embedder
	clip, err := embedding.NewCLIPEmbedder(
		cfg.Embedding.ImageModelPath,
		cfg.Embedding.TextModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
	)
	if err != nil {
		logger.Warn("CLIP models unavailable, using deterministic mock embedder", zap.Error(err))
		inner = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		inner = clip
	}
	embedder := embedding.NewCachedEmbedder(inner, cfg.Embedding.CacheSize)

	vectors, err := vector.NewManager(cfg.Embedding.Dimensions,
		vector.WithPromoteThreshold(cfg.Index.PromoteThreshold),
		vector.WithClusterBounds(cfg.Index.MinClusters, cfg.Index.MaxClusters),
		vector.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	meta := metadata.NewStore()
	images, err := storage.NewImageStore(cfg.Storage.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image store: %w", err)
	}

	idx := indexer.New(embedder, vectors, meta, images,
		cfg.Storage.IndexPath,
		cfg.Storage.PathsPath,
		cfg.Storage.MetadataPath,
		cfg.Index.PersistEvery,
		logger,
	)
	pipeline := search.NewPipeline(embedder, vectors, meta,
		cfg.Search.ImageOverfetch,
		cfg.Search.TextOverfetch,
		logger,
	)

	return &Components{
		Embedder: embedder,
		Vectors:  vectors,
		Meta:     meta,
		Images:   images,
		Indexer:  idx,
		Pipeline: pipeline,
		Stats:    stats.NewCollector(),
	}, nil
}

func printUsage() {
	fmt.Println(`mitsuke - content-based product image search

Usage:
  mitsuke server [flags]             Start the HTTP server
  mitsuke ingest [flags] <path>      Index an image file or directory
  mitsuke search [flags] <text>      Search the catalog by description
  mitsuke status [flags]             Show index and query statistics
  mitsuke delete [flags] <filename>  Delete an image from the catalog
  mitsuke version                    Show version
  mitsuke help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/mitsuke/config.yaml)
  --debug            Enable debug logging (watch events, query details, etc.)

Ingest Flags:
  --config string    Config file path
  --category string  Category to set on every ingested image

Search Flags:
  --server string     Server URL (default: http://localhost:5001)
  --top-k int         Number of results (default: 10)
  --threshold float   Minimum similarity score (0 = server default)
  --output string     Output format: text or json (default: text)

Status / Delete Flags:
  --server string    Server URL (default: http://localhost:5001)

Examples:
  mitsuke server
  mitsuke ingest --category sofa ./catalog/sofas
  mitsuke search red leather sofa
  mitsuke search --output json "oak table"
  mitsuke delete alma_sofa_front.jpg
  mitsuke status`)
}
