// Package server provides the HTTP API for Mitsuke.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/indexer"
	"github.com/hyperjump/mitsuke/internal/metadata"
	"github.com/hyperjump/mitsuke/internal/search"
	"github.com/hyperjump/mitsuke/internal/stats"
	"github.com/hyperjump/mitsuke/internal/vector"
)

// Server is the HTTP server for the Mitsuke API.
type Server struct {
	pipeline *search.Pipeline
	indexer  *indexer.Indexer
	vectors  *vector.Manager
	meta     *metadata.Store
	stats    *stats.Collector
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	pipeline *search.Pipeline,
	idx *indexer.Indexer,
	vectors *vector.Manager,
	meta *metadata.Store,
	collector *stats.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline: pipeline,
		indexer:  idx,
		vectors:  vectors,
		meta:     meta,
		stats:    collector,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/add", s.handleAdd)
	r.Post("/add-batch", s.handleAddBatch)
	r.Post("/search", s.handleSearch)
	r.Post("/search-by-text", s.handleSearchByText)
	r.Post("/recommend", s.handleRecommend)
	r.Post("/delete", s.handleDelete)
	r.Post("/reset", s.handleReset)
	r.Get("/stats", s.handleStats)
	r.Post("/benchmark", s.handleBenchmark)
	r.Post("/evaluate-query", s.handleEvaluateQuery)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
