package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashEmbedder derives a deterministic unit vector from the SHA-256 of the input.
// Identical texts map to identical vectors; it carries no semantic signal.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder builds a hash embedder. Non-positive dims default to 64.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, input string) ([]float32, error) {
	vec := make([]float64, e.dims)
	var counter [4]byte
	filled := 0
	for block := uint32(0); filled < e.dims; block++ {
		binary.BigEndian.PutUint32(counter[:], block)
		h := sha256.New()
		h.Write(counter[:])
		h.Write([]byte(input))
		for _, b := range h.Sum(nil) {
			if filled == e.dims {
				break
			}
			vec[filled] = float64(b) / 255.0
			filled++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, e.dims)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *HashEmbedder) Dimensions() int {
	return e.dims
}
