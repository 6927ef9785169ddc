//go:build !onnx

package onnx

import (
	"context"
	"fmt"

	"github.com/mnemoria-ai/mnemoria-go/semantic/embedder"
)

// Config locates the model assets. Unused in builds without the onnx
// tag; kept so probing code compiles either way.
type Config struct {
	ModelPath     string
	TokenizerPath string
	LibraryPath   string
	Dimensions    int
}

// Embedder is unavailable without the onnx build tag.
type Embedder struct{}

// New reports the backend unavailable. Builds that want local
// embeddings compile with -tags onnx.
func New(cfg Config) (*Embedder, error) {
	return nil, fmt.Errorf("%w: built without onnx tag", embedder.ErrUnavailable)
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, embedder.ErrUnavailable
}

func (e *Embedder) Dimensions() int { return 0 }

func (e *Embedder) Close() error { return nil }
