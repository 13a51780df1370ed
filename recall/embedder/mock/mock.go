package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder is a deterministic embedder for tests: no model files, no
// network. Embeddings are derived from a hash of the text, so identical
// text always embeds identically.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder.
func New() *Embedder {
	return &Embedder{
		dimensions: 384, // Match all-MiniLM-L6-v2 dimensions
	}
}

// Embed creates a deterministic embedding from text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// Simple LCG (Linear Congruential Generator)
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// normalize converts the embedding to a unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}
