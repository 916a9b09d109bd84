// Package search implements the query pipeline: embed, overfetch, threshold,
// filter, dedup and rank.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/embedding"
	"github.com/hyperjump/mitsuke/internal/metadata"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/vector"
	"github.com/hyperjump/mitsuke/pkg/utils"
)

// ErrItemNotFound is returned when a recommendation source cannot be resolved.
var ErrItemNotFound = errors.New("item not found")

// Timing breaks down where one query spent its time, in milliseconds.
type Timing struct {
	EmbedMs  float64 `json:"embed_ms"`
	SearchMs float64 `json:"search_ms"`
	RankMs   float64 `json:"rank_ms"`
	TotalMs  float64 `json:"total_ms"`
}

// Pipeline runs similarity queries against the vector index, then applies
// score thresholds, metadata filters, product dedup and final ranking.
type Pipeline struct {
	embedder       embedding.Embedder
	vectors        *vector.Manager
	meta           *metadata.Store
	logger         *zap.Logger
	imageOverfetch int
	textOverfetch  int
}

// NewPipeline wires the query pipeline. Overfetch factors below 1 are raised
// to 1.
func NewPipeline(embedder embedding.Embedder, vectors *vector.Manager, meta *metadata.Store, imageOverfetch, textOverfetch int, logger *zap.Logger) *Pipeline {
	if imageOverfetch < 1 {
		imageOverfetch = 1
	}
	if textOverfetch < 1 {
		textOverfetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		embedder:       embedder,
		vectors:        vectors,
		meta:           meta,
		logger:         logger,
		imageOverfetch: imageOverfetch,
		textOverfetch:  textOverfetch,
	}
}

// SearchImage runs a query-by-image. The index is overfetched so that
// threshold, filter and dedup stages still leave TopK candidates. Results
// from the same product keep only their best-scoring image.
func (p *Pipeline) SearchImage(ctx context.Context, imagePath string, params models.SearchParams) ([]*models.SearchResult, Timing, error) {
	var timing Timing
	start := time.Now()
	if p.vectors.Size() == 0 {
		return []*models.SearchResult{}, timing, nil
	}

	embedStart := time.Now()
	query, err := p.embedder.EmbedImage(ctx, imagePath)
	if err != nil {
		// Same zero-vector sentinel as a failed add: the query scores as
		// maximally dissimilar instead of failing the request.
		p.logger.Warn("query embedding failed, searching with zero vector",
			zap.String("path", imagePath),
			zap.Error(err))
		query = make([]float32, p.vectors.Dimensions())
	}
	timing.EmbedMs = msSince(embedStart)

	searchStart := time.Now()
	hits, err := p.vectors.Search(query, params.TopK*p.imageOverfetch)
	if err != nil {
		return nil, timing, err
	}
	timing.SearchMs = msSince(searchStart)

	rankStart := time.Now()
	results := p.collect(hits, params.Threshold, params.Filters, true, params.TopK, "")
	timing.RankMs = msSince(rankStart)
	timing.TotalMs = msSince(start)

	p.logger.Debug("image search",
		zap.Int("candidates", len(hits)),
		zap.Int("results", len(results)),
		zap.Float64("total_ms", timing.TotalMs))
	return results, timing, nil
}

// SearchText runs a query-by-description. Text scores run lower than
// image-to-image scores, so the overfetch factor is smaller and no product
// dedup is applied.
func (p *Pipeline) SearchText(ctx context.Context, query string, params models.SearchParams) ([]*models.SearchResult, Timing, error) {
	var timing Timing
	start := time.Now()
	if p.vectors.Size() == 0 {
		return []*models.SearchResult{}, timing, nil
	}

	embedStart := time.Now()
	vec, err := p.embedder.EmbedText(ctx, query)
	if err != nil {
		p.logger.Warn("text embedding failed, searching with zero vector",
			zap.String("query", query),
			zap.Error(err))
		vec = make([]float32, p.vectors.Dimensions())
	}
	timing.EmbedMs = msSince(embedStart)

	searchStart := time.Now()
	hits, err := p.vectors.Search(vec, params.TopK*p.textOverfetch)
	if err != nil {
		return nil, timing, err
	}
	timing.SearchMs = msSince(searchStart)

	rankStart := time.Now()
	results := p.collect(hits, params.Threshold, params.Filters, false, params.TopK, "")
	timing.RankMs = msSince(rankStart)
	timing.TotalMs = msSince(start)
	return results, timing, nil
}

// Recommend returns items similar to an already-indexed product, identified by
// product id or stored filename. The stored vector is reused, so no embedding
// runs, and no score threshold is applied: the closest neighbors are always
// returned even when similarity is modest.
func (p *Pipeline) Recommend(ctx context.Context, q models.RecommendQuery) (string, []*models.SearchResult, error) {
	sourcePath, err := p.resolveSource(q)
	if err != nil {
		return "", nil, err
	}
	vec, ok := p.vectors.VectorFor(sourcePath)
	if !ok {
		return "", nil, ErrItemNotFound
	}

	// One extra hit because the source item matches itself with score ~1.
	hits, err := p.vectors.Search(vec, q.TopK+1)
	if err != nil {
		return "", nil, err
	}
	results := p.collect(hits, math.Inf(-1), nil, false, q.TopK, sourcePath)
	return sourcePath, results, nil
}

func (p *Pipeline) resolveSource(q models.RecommendQuery) (string, error) {
	if q.ProductID != "" {
		path, ok := p.meta.FindPath(func(_ string, r models.Metadata) bool {
			return r.ProductID("") == q.ProductID
		})
		if !ok {
			return "", ErrItemNotFound
		}
		return path, nil
	}
	if q.Filename != "" {
		base := filepath.Base(q.Filename)
		for _, path := range p.vectors.Paths() {
			if filepath.Base(path) == base {
				return path, nil
			}
		}
		return "", ErrItemNotFound
	}
	return "", fmt.Errorf("recommend: product_id or filename required")
}

// collect turns raw hits into ranked results: threshold, metadata filters,
// optional product dedup and self-exclusion, then truncation to topK. The
// threshold always applies; a zero threshold drops only negative scores, and
// -Inf disables thresholding.
func (p *Pipeline) collect(hits []vector.Result, threshold float64, filters map[string]interface{}, dedup bool, topK int, excludePath string) []*models.SearchResult {
	results := make([]*models.SearchResult, 0, topK)
	seen := make(map[string]bool)
	for _, h := range hits {
		if len(results) >= topK {
			break
		}
		if h.Path == excludePath {
			continue
		}
		if h.Score < threshold {
			continue
		}
		record := p.meta.Get(h.Path)
		if len(filters) > 0 && !record.Matches(filters) {
			continue
		}
		if dedup {
			key := record.ProductID(h.Path)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		score := utils.Round4(h.Score)
		results = append(results, &models.SearchResult{
			Path:          h.Path,
			Score:         score,
			OriginalScore: score,
			Rank:          len(results) + 1,
			Metadata:      record,
		})
	}
	return results
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
