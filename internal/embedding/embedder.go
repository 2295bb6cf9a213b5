// Package embedding turns code into fixed-length vectors.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted in configuration.
const (
	ProviderONNX   = "onnx"
	ProviderOllama = "ollama"
	ProviderMock   = "mock"
)

// DefaultDimensions is the hidden size of CodeBERT.
const DefaultDimensions = 768

// CheckVector returns an error unless v is non-empty and has the expected dimension.
func CheckVector(v []float32, dimensions int) error {
	if len(v) == 0 {
		return fmt.Errorf("empty embedding")
	}
	if dimensions > 0 && len(v) != dimensions {
		return fmt.Errorf("embedding dimension %d, expected %d", len(v), dimensions)
	}
	return nil
}

func errBatchSize(want, got int) error {
	return fmt.Errorf("embedder returned %d vectors for %d texts", got, want)
}
