//go:build onnx

// Package onnx embeds text locally with ONNX Runtime and a
// MiniLM-style sentence-transformer model. It is the optional
// embedding backend: builds without the onnx tag, or environments
// missing the model files, report ErrUnavailable from New and the
// semantic layer falls back to its in-memory store.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/mnemoria-ai/mnemoria-go/semantic/embedder"
)

// Config locates the model assets.
type Config struct {
	// ModelPath is the ONNX model file (e.g. all-MiniLM-L6-v2).
	ModelPath string

	// TokenizerPath is the HuggingFace tokenizer.json next to it.
	TokenizerPath string

	// LibraryPath overrides the onnxruntime shared library location;
	// the ONNXRUNTIME_LIB environment variable is the default.
	LibraryPath string

	// Dimensions is the embedding size; defaults to 384.
	Dimensions int
}

const maxSequenceLen = 128

// Embedder runs model inference for single-text embedding.
type Embedder struct {
	session    *ort.DynamicAdvancedSession
	vocab      *wordPieceVocab
	dimensions int
}

// New creates the ONNX embedder. Missing model or tokenizer files are
// an availability failure (ErrUnavailable), not a hard error: callers
// probe this constructor once and select the fallback store on it.
func New(cfg Config) (*Embedder, error) {
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.LibraryPath == "" {
		cfg.LibraryPath = os.Getenv("ONNXRUNTIME_LIB")
	}

	for _, path := range []string{cfg.ModelPath, cfg.TokenizerPath} {
		if path == "" {
			return nil, fmt.Errorf("%w: model paths not configured", embedder.ErrUnavailable)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", embedder.ErrUnavailable, path)
		}
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: initialize onnxruntime: %v", embedder.ErrUnavailable, err)
	}

	vocab, err := loadVocab(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	log.Info().Str("model", cfg.ModelPath).Int("dimensions", cfg.Dimensions).Msg("onnx embedder ready")
	return &Embedder{session: session, vocab: vocab, dimensions: cfg.Dimensions}, nil
}

// Embed tokenizes, runs inference, mean-pools over attended tokens,
// and returns a unit vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	inputIDs := make([]int64, maxSequenceLen)
	attention := make([]int64, maxSequenceLen)
	tokenTypes := make([]int64, maxSequenceLen)

	tokens := e.vocab.tokenize(text)
	if len(tokens) > maxSequenceLen-2 {
		tokens = tokens[:maxSequenceLen-2]
	}
	inputIDs[0] = clsTokenID
	attention[0] = 1
	for i, id := range tokens {
		inputIDs[i+1] = id
		attention[i+1] = 1
	}
	inputIDs[len(tokens)+1] = sepTokenID
	attention[len(tokens)+1] = 1

	shape := ort.NewShape(1, maxSequenceLen)
	inputs := make([]ort.Value, 0, 3)
	for _, data := range [][]int64{inputIDs, attention, tokenTypes} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			for _, t := range inputs {
				t.Destroy()
			}
			return nil, fmt.Errorf("onnx: create tensor: %w", err)
		}
		inputs = append(inputs, tensor)
	}
	defer func() {
		for _, t := range inputs {
			t.Destroy()
		}
	}()

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx: unexpected output tensor type")
	}
	return e.pool(tensor, attention)
}

// pool reduces the model output to one vector: pass-through for
// already-pooled [1, dims] outputs, attention-masked mean pooling for
// [1, seq, dims] hidden states.
func (e *Embedder) pool(tensor *ort.Tensor[float32], attention []int64) ([]float32, error) {
	data := tensor.GetData()
	shape := tensor.GetShape()
	out := make([]float32, e.dimensions)

	switch len(shape) {
	case 2:
		if len(data) < e.dimensions {
			return nil, fmt.Errorf("onnx: output dimension mismatch: got %d, want %d", len(data), e.dimensions)
		}
		copy(out, data[:e.dimensions])
	case 3:
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != e.dimensions {
			return nil, fmt.Errorf("onnx: hidden size mismatch: got %d, want %d", hidden, e.dimensions)
		}
		var attended float32
		for i := 0; i < seqLen && i < len(attention); i++ {
			if attention[i] == 0 {
				continue
			}
			attended++
			for j := 0; j < hidden; j++ {
				out[j] += data[i*hidden+j]
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("onnx: no attended tokens")
		}
		for j := range out {
			out[j] /= attended
		}
	default:
		return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
	}

	return normalize(out), nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases the inference session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// BERT special token IDs shared by the MiniLM family.
const (
	unkTokenID int64 = 100
	clsTokenID int64 = 101
	sepTokenID int64 = 102
)

// wordPieceVocab is a minimal WordPiece tokenizer over the vocabulary
// in tokenizer.json.
type wordPieceVocab struct {
	ids map[string]int
}

func loadVocab(path string) (*wordPieceVocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	if len(tok.Model.Vocab) == 0 {
		return nil, fmt.Errorf("empty vocabulary in %s", path)
	}
	return &wordPieceVocab{ids: tok.Model.Vocab}, nil
}

func (v *wordPieceVocab) tokenize(text string) []int64 {
	var out []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := v.ids[word]; ok {
			out = append(out, int64(id))
			continue
		}
		out = append(out, v.subwords(word)...)
	}
	return out
}

// subwords splits an out-of-vocabulary word greedily into the longest
// matching pieces, "##"-prefixed past the first.
func (v *wordPieceVocab) subwords(word string) []int64 {
	var out []int64
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := v.ids[piece]; ok {
				out = append(out, int64(id))
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			out = append(out, unkTokenID)
			start++
		}
	}
	return out
}
