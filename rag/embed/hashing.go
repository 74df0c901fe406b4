// Package embed provides a deterministic local embedder for tests, demos and
// environments without a model-backed embedding service.
package embed

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/tessera-ai/tessera/rag/retrieval"
)

const defaultDims = 256

// HashingEmbedder maps text to a fixed-length vector by feature-hashing its
// tokens. The output is L2-normalized, so cosine similarity over these
// vectors reflects token overlap. It is deterministic and dependency-free,
// not a substitute for a learned embedding model.
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder creates an embedder producing vectors of the given
// dimensionality. Non-positive dims fall back to 256.
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = defaultDims
	}
	return &HashingEmbedder{dims: dims}
}

// Dims returns the embedding dimensionality.
func (e *HashingEmbedder) Dims() int { return e.dims }

// Embed hashes each token into a bucket and accumulates counts, then
// normalizes. Empty text yields the zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, e.dims)
	for _, token := range retrieval.Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		bucket := int(h.Sum32()) % e.dims
		if bucket < 0 {
			bucket += e.dims
		}
		vec[bucket]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}
