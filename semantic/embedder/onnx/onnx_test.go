package onnx_test

import (
	"errors"
	"testing"

	"github.com/mnemoria-ai/mnemoria-go/semantic/embedder"
	"github.com/mnemoria-ai/mnemoria-go/semantic/embedder/onnx"
)

// The constructor doubles as the availability probe: without model
// assets (or without the onnx build tag) it must report ErrUnavailable
// so callers select the fallback store.
func TestNewUnavailableWithoutAssets(t *testing.T) {
	if _, err := onnx.New(onnx.Config{}); !errors.Is(err, embedder.ErrUnavailable) {
		t.Errorf("New with no assets = %v, want ErrUnavailable", err)
	}

	_, err := onnx.New(onnx.Config{
		ModelPath:     "/nonexistent/model.onnx",
		TokenizerPath: "/nonexistent/tokenizer.json",
	})
	if !errors.Is(err, embedder.ErrUnavailable) {
		t.Errorf("New with missing files = %v, want ErrUnavailable", err)
	}
}
