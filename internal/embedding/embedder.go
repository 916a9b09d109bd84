// Package embedding produces CLIP-style image and text embeddings via ONNX,
// with caching and deterministic mock fallback.
package embedding

import "context"

// Embedder maps images and text descriptions into a shared vector space.
// Implementations return unit-length vectors of Dimensions() size.
type Embedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
