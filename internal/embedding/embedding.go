// Package embedding turns text into fixed-dimension vectors for semantic
// search.
//
// HashEmbedder is built in and deterministic: folded terms and term bigrams
// are hashed into signed buckets and the vector is L2-normalized. Worker
// delegates to the external search worker's embed action. Cached wraps either
// with a persistent cache keyed by content hash.
package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"

	"vidscribe/internal/textutil"
)

// Embedder maps texts to vectors of a fixed dimension.
type Embedder interface {
	// ID names the embedder and its parameters; cached vectors are keyed by it.
	ID() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HashEmbedder is a feature-hashing term embedder.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a hash embedder producing dims-length vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) ID() string { return fmt.Sprintf("hash-v1-%d", h.dims) }

func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed never fails; ctx is checked between texts.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embedOne(text)
	}
	return out, nil
}

func (h *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, h.dims)
	terms := textutil.Tokenize(text)
	for i, term := range terms {
		h.add(vec, term, 1)
		if i > 0 {
			// Bigrams give word order a small say.
			h.add(vec, terms[i-1]+" "+term, 0.5)
		}
	}
	normalize(vec)
	return vec
}

func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	sum := blake2b.Sum256([]byte(feature))
	bucket := binary.LittleEndian.Uint64(sum[:8]) % uint64(h.dims)
	if sum[8]&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine returns the cosine similarity of a and b clamped to [0, 1]. Vectors
// of different length or zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}

// ContentHash returns the hex BLAKE2b-256 digest used as the cache key.
func ContentHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum)
}
