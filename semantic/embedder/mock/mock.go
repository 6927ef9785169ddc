// Package mock provides a deterministic embedder for tests. Embeddings
// are hash-derived, so identical texts embed identically but there is
// no real semantic similarity.
package mock

import (
	"context"
	"hash/crc64"
	"math"
)

var crcTable = crc64.MakeTable(crc64.ECMA)

// Embedder generates deterministic embeddings from a text hash.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with MiniLM-sized vectors.
func New() *Embedder {
	return &Embedder{dimensions: 384}
}

// Embed seeds a splitmix64 stream with the text's CRC and expands it
// into a unit vector.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	state := crc64.Checksum([]byte(text), crcTable)

	embedding := make([]float32, m.dimensions)
	var norm float64
	for i := range embedding {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31

		v := float64(int64(z)) / float64(math.MaxInt64)
		embedding[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range embedding {
			embedding[i] *= scale
		}
	}
	return embedding, nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}
