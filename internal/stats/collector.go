// Package stats collects query performance metrics over a sliding window.
package stats

import (
	"sync"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

// windowSize bounds the number of recent queries kept for aggregates.
const windowSize = 100

// Collector records per-query latency, result counts and score distribution.
// Aggregates are computed over the last windowSize queries; totals and the
// score distribution cover the collector's lifetime.
type Collector struct {
	mu           sync.Mutex
	latencies    []float64
	resultCounts []int
	totalQueries int
	scoreBuckets map[string]int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		latencies:    make([]float64, 0, windowSize),
		resultCounts: make([]int, 0, windowSize),
		scoreBuckets: emptyBuckets(),
	}
}

func emptyBuckets() map[string]int {
	return map[string]int{
		"excellent_0.9+":     0,
		"good_0.8-0.9":       0,
		"fair_0.7-0.8":       0,
		"acceptable_0.6-0.7": 0,
		"poor_below_0.6":     0,
	}
}

// Record adds one query observation: its latency in milliseconds and the
// scores of the results it returned.
func (c *Collector) Record(latencyMs float64, scores []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalQueries++
	c.latencies = append(c.latencies, latencyMs)
	if len(c.latencies) > windowSize {
		c.latencies = c.latencies[len(c.latencies)-windowSize:]
	}
	c.resultCounts = append(c.resultCounts, len(scores))
	if len(c.resultCounts) > windowSize {
		c.resultCounts = c.resultCounts[len(c.resultCounts)-windowSize:]
	}
	for _, s := range scores {
		c.scoreBuckets[bucketFor(s)]++
	}
}

func bucketFor(score float64) string {
	switch {
	case score >= 0.9:
		return "excellent_0.9+"
	case score >= 0.8:
		return "good_0.8-0.9"
	case score >= 0.7:
		return "fair_0.7-0.8"
	case score >= 0.6:
		return "acceptable_0.6-0.7"
	default:
		return "poor_below_0.6"
	}
}

// Latency summarizes latency over the recent window, in milliseconds.
type Latency struct {
	AvgMs float64 `json:"avg_ms"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// Snapshot is a point-in-time view of collected metrics.
type Snapshot struct {
	TotalQueries       int            `json:"total_queries"`
	WindowSize         int            `json:"window_size"`
	Latency            Latency        `json:"latency"`
	AvgResultsPerQuery float64        `json:"avg_results_per_query"`
	ThroughputPerSec   float64        `json:"throughput_per_sec"`
	ScoreDistribution  map[string]int `json:"score_distribution"`
}

// Snapshot computes aggregates over the recent window.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		TotalQueries:      c.totalQueries,
		WindowSize:        len(c.latencies),
		ScoreDistribution: make(map[string]int, len(c.scoreBuckets)),
	}
	for k, v := range c.scoreBuckets {
		snap.ScoreDistribution[k] = v
	}
	if len(c.latencies) == 0 {
		return snap
	}

	avg := utils.Mean(c.latencies)
	min, max := c.latencies[0], c.latencies[0]
	for _, v := range c.latencies[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	snap.Latency = Latency{
		AvgMs: utils.Round2(avg),
		MinMs: utils.Round2(min),
		MaxMs: utils.Round2(max),
		P50Ms: utils.Round2(utils.Percentile(c.latencies, 50)),
		P95Ms: utils.Round2(utils.Percentile(c.latencies, 95)),
		P99Ms: utils.Round2(utils.Percentile(c.latencies, 99)),
	}

	var totalResults int
	for _, n := range c.resultCounts {
		totalResults += n
	}
	snap.AvgResultsPerQuery = utils.Round2(float64(totalResults) / float64(len(c.resultCounts)))
	if avg > 0 {
		snap.ThroughputPerSec = utils.Round2(1000 / avg)
	}
	return snap
}

// Reset drops all recorded observations.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = c.latencies[:0]
	c.resultCounts = c.resultCounts[:0]
	c.totalQueries = 0
	c.scoreBuckets = emptyBuckets()
}
