package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "length mismatch", a: []float32{1, 2}, b: []float32{1, 2, 3}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestStaticClientDeterministic(t *testing.T) {
	ctx := context.Background()
	c := NewStaticClient()

	a, err := c.Embed(ctx, "I prefer dark mode in my editor")
	require.NoError(t, err)
	b, err := c.Embed(ctx, "I prefer dark mode in my editor")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, Cosine(a, b), 1e-6)
}

func TestStaticClientNormalized(t *testing.T) {
	ctx := context.Background()
	c := NewStaticClient()

	vec, err := c.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestStaticClientRelatedTextScoresHigher(t *testing.T) {
	ctx := context.Background()
	c := NewStaticClient()

	base, err := c.Embed(ctx, "user prefers dark mode themes")
	require.NoError(t, err)
	related, err := c.Embed(ctx, "dark mode themes are preferred")
	require.NoError(t, err)
	unrelated, err := c.Embed(ctx, "quarterly revenue exceeded forecasts")
	require.NoError(t, err)

	assert.Greater(t, Cosine(base, related), Cosine(base, unrelated))
}

func TestStaticClientEmptyText(t *testing.T) {
	ctx := context.Background()
	c := NewStaticClient()

	vec, err := c.Embed(ctx, "   ")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)
	assert.InDelta(t, 1.0, Cosine(vec, vec), 1e-9)
}
