package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/dslachut/hawat/core"
)

// MockEmbedder is a simple mock embedder for testing.
// It hashes each lowercase word into one of the dimensions (bag of words),
// so texts sharing words are similar and the output is deterministic.
type MockEmbedder struct {
	dimensions int
	err        error
}

// New creates a new mock embedder.
func New() *MockEmbedder {
	return &MockEmbedder{
		dimensions: core.EmbeddingDimensions, // Match all-MiniLM-L6-v2 dimensions
	}
}

// Failing returns an embedder whose Embed always returns err.
func Failing(err error) *MockEmbedder {
	m := New()
	m.err = err
	return m
}

// Embed creates a deterministic embedding from text.
// Text without any word yields a nil embedding.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}

	words := tokenize(text)
	if len(words) == 0 {
		return nil, nil
	}

	embedding := make([]float32, m.dimensions)
	for _, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		embedding[h.Sum64()%uint64(m.dimensions)]++
	}

	// Normalize to unit vector
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// tokenize splits text into lowercase alphanumeric words.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalize converts embedding to unit vector.
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
