// Package embedding implements the persisted tool-embedding store: a
// {tool_key -> embedding record} map on disk with an in-memory mirror,
// content-hash invalidation, and offline pre-generation support.
package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Record is one persisted tool embedding, keyed by ToolKey.
type Record struct {
	ToolKey     string
	ContentHash uint64
	Vector      []float32
	ModelID     string
	Dims        int
	GeneratedAt time.Time
}

// Valid reports whether r's content hash matches the canonical hash of the
// tool's current (name, description, schema, model) tuple — the invariant
// in spec.md §3/§4.7: a vector is usable only while the hash still matches.
func (r Record) Valid(canonicalHash uint64) bool {
	return r.ContentHash == canonicalHash
}

// ContentHash computes the canonical content hash of a tool's embedding
// inputs: (name, description, input_schema, model_id). Any change to any of
// these invalidates the stored vector.
func ContentHash(name, description string, inputSchema []byte, modelID string) uint64 {
	h := xxhash.New()
	writeField(h, name)
	writeField(h, description)
	h.Write(inputSchema)
	writeField(h, modelID)
	return h.Sum64()
}

// writeField writes a length-prefixed string so concatenated fields can't
// collide across field boundaries (e.g. "ab"+"c" vs "a"+"bc").
func writeField(h *xxhash.Digest, s string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1]. It
// returns 0 if either vector has zero magnitude or the dimensions mismatch.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Store is the persisted tool-embedding store interface. ToolKey is the
// registry's canonical tool name.
type Store interface {
	Get(toolKey string) (Record, bool, error)
	Put(rec Record) error
	Delete(toolKey string) error
	All() ([]Record, error)
	Close() error
}

// ErrNotFound is the error value for a missing record, for adapters that
// wrap Store and report a miss as an error matched with errors.Is. Store's
// own lookups report a miss through their "found" bool; nothing in this
// package returns ErrNotFound.
var ErrNotFound = fmt.Errorf("embedding: record not found")
