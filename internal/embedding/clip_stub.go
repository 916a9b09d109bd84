//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// CLIPEmbedder stub type when built without CGO (see clip.go for the real
// implementation).
type CLIPEmbedder struct{}

// NewCLIPEmbedder returns an error when built without CGO (ONNX not available).
func NewCLIPEmbedder(_, _ string, _, _ int) (*CLIPEmbedder, error) {
	return nil, errors.New("CLIP embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// EmbedImage always fails on the stub.
func (e *CLIPEmbedder) EmbedImage(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("CLIP embedder not available without CGO")
}

// EmbedText always fails on the stub.
func (e *CLIPEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("CLIP embedder not available without CGO")
}

// Dimensions returns 0 on the stub.
func (e *CLIPEmbedder) Dimensions() int { return 0 }

// Close is a no-op on the stub.
func (e *CLIPEmbedder) Close() error { return nil }
