package embedding

import (
	"context"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashEmbedder is the default Embedder (model id "local-hash-v1"): it
// derives a deterministic fixed-width vector from xxhash of the input
// text, with no external model dependency and no network call. It is not
// a semantically meaningful embedding — cosine similarity against it only
// rewards near-identical tool descriptions — but it keeps semantic
// ranking functional out of the box, with a real provider pluggable
// behind the same Embedder seam once one is configured (spec.md §9).
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder builds a HashEmbedder producing dims-dimensional
// vectors. dims <= 0 defaults to 32.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 32
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) ModelID() string { return "local-hash-v1" }

func (e *HashEmbedder) Dims() int { return e.dims }

// Embed hashes text under dims independent seeds and maps each digest into
// [-1, 1], giving a stable vector that changes whenever text does.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	var seed [8]byte
	for i := range vec {
		binary.BigEndian.PutUint64(seed[:], uint64(i))
		h := xxhash.New()
		h.Write(seed[:])
		h.Write([]byte(text))
		sum := h.Sum64()
		// Map the top 24 bits of the digest onto [-1, 1].
		vec[i] = float32(int32(sum>>40&0xFFFFFF)-0x800000) / 0x800000
	}
	return vec, nil
}
