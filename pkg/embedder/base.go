// Package embedder provides interfaces for text embedding providers.
//
// It defines the Provider interface that all embedding implementations must satisfy,
// enabling text-to-vector conversion for similarity search.
package embedder

import (
	"context"
	"fmt"

	"github.com/halldyll/recall-go/pkg/model"
)

// Provider defines the interface for embedding providers.
//
// All embedding implementations (OpenAI, Ollama, hashing) must implement this interface.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - text: The input text to embed
	//
	// Returns the embedding vector and any error.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings.
	//
	// This method is more efficient than calling Embed multiple times,
	// as it can batch process requests.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - texts: Slice of input texts to embed
	//
	// Returns a slice of embedding vectors and any error.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of embedding vectors produced by this provider.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}

// CheckDimensions verifies a vector has the provider's dimension.
func CheckDimensions(p Provider, vec []float64) error {
	if want := p.Dimensions(); want > 0 && len(vec) != want {
		return fmt.Errorf("embedding has %d dimensions, want %d: %w", len(vec), want, model.ErrDimensionMismatch)
	}
	return nil
}
