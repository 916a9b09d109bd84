package search

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/pkg/utils"
)

// minBenchmarkItems is the smallest catalog a benchmark run accepts.
const minBenchmarkItems = 5

// BenchmarkReport summarizes a self-benchmark run: indexed items queried
// against their own index.
type BenchmarkReport struct {
	NumQueries  int     `json:"num_queries"`
	TopK        int     `json:"top_k"`
	IndexSize   int     `json:"index_size"`
	IndexType   string  `json:"index_type"`
	Latency     Latency `json:"latency"`
	AvgScore    float64 `json:"avg_score"`
	ScoreStdDev float64 `json:"score_std_dev"`
	// AvgPrecision is the mean fraction of results sharing the query item's
	// category, over queries that have a category. Nil (omitted) when no
	// sampled item carries a category, which is different from zero precision.
	AvgPrecision *float64 `json:"avg_precision_at_k,omitempty"`
}

// Latency holds latency aggregates for a benchmark run, in milliseconds.
type Latency struct {
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// Benchmark queries the index with a random sample of its own items and
// measures latency and category precision. Sampling is without replacement.
func (p *Pipeline) Benchmark(ctx context.Context, req models.BenchmarkRequest) (*BenchmarkReport, error) {
	paths := p.vectors.Paths()
	if len(paths) < minBenchmarkItems {
		return nil, fmt.Errorf("benchmark requires at least %d indexed items, have %d", minBenchmarkItems, len(paths))
	}

	numQueries := req.NumQueries
	if numQueries <= 0 {
		numQueries = 10
	}
	if numQueries > len(paths) {
		numQueries = len(paths)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	sample := rand.Perm(len(paths))[:numQueries]

	var (
		latencies  []float64
		scores     []float64
		precisions []float64
	)
	for _, i := range sample {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sourcePath := paths[i]
		vec, ok := p.vectors.VectorFor(sourcePath)
		if !ok {
			continue
		}

		start := time.Now()
		hits, err := p.vectors.Search(vec, topK+1)
		if err != nil {
			return nil, err
		}
		latencies = append(latencies, msSince(start))

		sourceCategory := p.meta.Get(sourcePath).Category()
		matched, counted := 0, 0
		for _, h := range hits {
			if h.Path == sourcePath {
				continue
			}
			if counted >= topK {
				break
			}
			counted++
			scores = append(scores, h.Score)
			if sourceCategory != "" && p.meta.Get(h.Path).Category() == sourceCategory {
				matched++
			}
		}
		if sourceCategory != "" && counted > 0 {
			precisions = append(precisions, float64(matched)/float64(counted))
		}
	}
	if len(latencies) == 0 {
		return nil, fmt.Errorf("benchmark ran no queries")
	}

	report := &BenchmarkReport{
		NumQueries: len(latencies),
		TopK:       topK,
		IndexSize:  p.vectors.Size(),
		IndexType:  string(p.vectors.Type()),
		Latency: Latency{
			AvgMs: utils.Round2(utils.Mean(latencies)),
			P50Ms: utils.Round2(utils.Percentile(latencies, 50)),
			P95Ms: utils.Round2(utils.Percentile(latencies, 95)),
		},
	}
	if len(scores) > 0 {
		report.AvgScore = utils.Round4(utils.Mean(scores))
		report.ScoreStdDev = utils.Round4(utils.StdDev(scores))
	}
	if len(precisions) > 0 {
		precision := utils.Round4(utils.Mean(precisions))
		report.AvgPrecision = &precision
	}

	p.logger.Info("benchmark complete",
		zap.Int("queries", report.NumQueries),
		zap.Float64("avg_ms", report.Latency.AvgMs),
		zap.Float64p("precision", report.AvgPrecision))
	return report, nil
}
