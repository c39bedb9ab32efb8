package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// StaticDimensions is the vector size produced by StaticClient.
const StaticDimensions = 128

// StaticClient is a deterministic, offline embedder: each word hashes into a
// fixed set of dimensions and the result is L2-normalized. Identical text
// always yields the identical vector, and texts sharing words score higher
// than disjoint ones. Used in tests and in deployments without an embedding
// provider.
type StaticClient struct{}

// NewStaticClient creates a StaticClient.
func NewStaticClient() *StaticClient {
	return &StaticClient{}
}

// Embed returns a deterministic vector for the given text.
func (c *StaticClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, StaticDimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, word := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		sum := h.Sum64()
		// Spread each word over three dimensions with signed weights so
		// distinct words rarely cancel each other out.
		for i := 0; i < 3; i++ {
			idx := (sum >> (i * 16)) % StaticDimensions
			sign := float32(1)
			if (sum>>(i*16+8))&1 == 1 {
				sign = -1
			}
			vec[idx] += sign
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1 // empty or symbol-only text still gets a valid unit vector
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
