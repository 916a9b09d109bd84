package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/mitsuke/internal/metadata"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/vector"
)

func TestBenchmark_SmallIndexRejected(t *testing.T) {
	mgr, _ := vector.NewManager(4)
	meta := metadata.NewStore()
	_, _ = mgr.Add("/img/a.jpg", []float32{1, 0, 0, 0})
	p := NewPipeline(&stubEmbedder{dims: 4}, mgr, meta, 5, 3, nil)

	if _, err := p.Benchmark(context.Background(), models.BenchmarkRequest{}); err == nil {
		t.Error("expected error for undersized index")
	}
}

func TestBenchmark_Report(t *testing.T) {
	p, _ := testCatalog(t)
	report, err := p.Benchmark(context.Background(), models.BenchmarkRequest{NumQueries: 5, TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if report.NumQueries != 5 {
		t.Errorf("num queries = %d", report.NumQueries)
	}
	if report.TopK != 2 {
		t.Errorf("top_k = %d", report.TopK)
	}
	if report.IndexSize != 5 || report.IndexType != "flat" {
		t.Errorf("index %d/%s", report.IndexSize, report.IndexType)
	}
	if report.Latency.AvgMs < 0 || report.Latency.P95Ms < report.Latency.P50Ms {
		t.Errorf("latency = %+v", report.Latency)
	}
	if report.AvgPrecision == nil {
		t.Fatal("precision should be available when items have categories")
	}
	if *report.AvgPrecision < 0 || *report.AvgPrecision > 1 {
		t.Errorf("precision = %f", *report.AvgPrecision)
	}
}

func TestBenchmark_NoCategoryDataOmitsPrecision(t *testing.T) {
	mgr, err := vector.NewManager(4)
	if err != nil {
		t.Fatal(err)
	}
	meta := metadata.NewStore()
	for i := 0; i < 5; i++ {
		vec := make([]float32, 4)
		vec[i%4] = 1
		if _, err := mgr.Add(fmt.Sprintf("/img/n%d.jpg", i), vec); err != nil {
			t.Fatal(err)
		}
	}
	p := NewPipeline(&stubEmbedder{dims: 4}, mgr, meta, 5, 3, nil)

	report, err := p.Benchmark(context.Background(), models.BenchmarkRequest{NumQueries: 5, TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	// No sampled item has a category, so precision is unavailable, which is
	// not the same as zero precision.
	if report.AvgPrecision != nil {
		t.Errorf("precision = %v, want unavailable", *report.AvgPrecision)
	}
}

func TestBenchmark_CapsQueriesAtIndexSize(t *testing.T) {
	p, _ := testCatalog(t)
	report, err := p.Benchmark(context.Background(), models.BenchmarkRequest{NumQueries: 50, TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if report.NumQueries != 5 {
		t.Errorf("num queries = %d, want capped at 5", report.NumQueries)
	}
}
