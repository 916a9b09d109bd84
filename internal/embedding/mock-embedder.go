package embedding

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and for running without
// ONNX models. The same image bytes or the same text always map to the same
// unit vector, so similarity ordering is stable.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing deterministic embeddings of
// the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedImage derives the embedding from a hash of the file contents.
func (e *MockEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	h := 0
	for _, b := range data {
		h = 31*h + int(b)
	}
	if h < 0 {
		h = -h
	}
	return e.fromHash(h), nil
}

// EmbedText derives the embedding from the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.fromHash(HashString(text)), nil
}

func (e *MockEmbedder) fromHash(h int) []float32 {
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
