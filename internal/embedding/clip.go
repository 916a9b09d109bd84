//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

// CLIPEmbedder runs the exported CLIP image and text encoders via ONNX
// Runtime. It requires CGO and the onnxruntime shared library.
type CLIPEmbedder struct {
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	imageSession *ort.AdvancedSession
	textSession  *ort.AdvancedSession
	// Pre-allocated tensors for Run(); we update input data and read output.
	pixelTensor    *ort.Tensor[float32]
	imageOutTensor *ort.Tensor[float32]
	inputIDsTensor *ort.Tensor[int64]
	textOutTensor  *ort.Tensor[float32]
	mu             sync.Mutex
}

// NewCLIPEmbedder loads both encoders. InitializeEnvironment is called if not
// already done.
func NewCLIPEmbedder(imageModelPath, textModelPath string, dimensions, maxTokens int) (*CLIPEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	e := &CLIPEmbedder{
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  &SimpleTokenizer{},
	}

	var err error
	e.pixelTensor, err = ort.NewTensor(ort.NewShape(1, 3, inputSize, inputSize), make([]float32, 3*inputSize*inputSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	e.imageOutTensor, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.imageSession, err = ort.NewAdvancedSession(
		imageModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.imageOutTensor},
		nil,
	)
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create image session: %w", err)
	}

	e.inputIDsTensor, err = ort.NewTensor(ort.NewShape(1, int64(maxTokens)), make([]int64, maxTokens))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.textOutTensor, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		textModelPath,
		[]string{"input_ids"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDsTensor},
		[]ort.ArbitraryTensor{e.textOutTensor},
		nil,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create text session: %w", err)
	}
	return e, nil
}

// EmbedImage preprocesses the image at path and runs the image encoder.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	pixels, err := PreprocessImage(path)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.pixelTensor.GetData(), pixels)
	if err := e.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.imageOutTensor.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// EmbedText tokenizes text and runs the text encoder.
func (e *CLIPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	inputIDs := e.tokenizer.Tokenize(text, e.maxTokens)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputIDsTensor.GetData(), inputIDs)
	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.textOutTensor.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys both sessions and their tensors.
func (e *CLIPEmbedder) Close() error {
	var err error
	if e.imageSession != nil {
		err = e.imageSession.Destroy()
		e.imageSession = nil
	}
	if e.textSession != nil {
		if derr := e.textSession.Destroy(); err == nil {
			err = derr
		}
		e.textSession = nil
	}
	e.destroyTensors()
	return err
}

func (e *CLIPEmbedder) destroyTensors() {
	if e.pixelTensor != nil {
		_ = e.pixelTensor.Destroy()
		e.pixelTensor = nil
	}
	if e.imageOutTensor != nil {
		_ = e.imageOutTensor.Destroy()
		e.imageOutTensor = nil
	}
	if e.inputIDsTensor != nil {
		_ = e.inputIDsTensor.Destroy()
		e.inputIDsTensor = nil
	}
	if e.textOutTensor != nil {
		_ = e.textOutTensor.Destroy()
		e.textOutTensor = nil
	}
}
