// Package embedding turns text into dense vectors for semantic similarity.
package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrUnavailable is returned when the embedding provider cannot be reached
// or rejects the request. Callers degrade to keyword matching.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Client produces embedding vectors for text.
type Client interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths or
// zero vectors yield 0 rather than an error: an unusable vector simply never
// matches anything.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
