// Package embedder defines the text-to-vector capability the semantic
// store's embedding backend is built on.
package embedder

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by backend constructors when the backend
// cannot be used in this build or environment (missing build tag,
// missing model files). The semantic layer probes for this once at
// construction and falls back to the in-memory store.
var ErrUnavailable = errors.New("embedder: backend unavailable")

// Embedder converts text to vector embeddings.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
