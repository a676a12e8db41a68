package simple

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_EncodeIsDeterministic(t *testing.T) {
	g := New(16)
	ctx := context.Background()

	first, err := g.Encode(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	second, err := g.Encode(ctx, []string{"beta", "alpha"})
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.True(t, first[0].Equal(second[1]))
	assert.True(t, first[1].Equal(second[0]))
	assert.False(t, first[0].Equal(first[1]))
}

func TestGenerator_EncodeDimensionsAndNorm(t *testing.T) {
	g := New(32)

	out, err := g.Encode(context.Background(), []string{"some chunk of text"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 32, out[0].Dimensions())

	var norm float64
	for _, v := range out[0].Slice() {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}

func TestGenerator_DefaultDimensions(t *testing.T) {
	g := New(0)

	assert.Equal(t, DefaultDimensions, g.ModelInfo().Dimensions)
	assert.Equal(t, "simple", g.ModelInfo().Backend)
}

func TestGenerator_EncodeRejectsEmptyInput(t *testing.T) {
	_, err := New(8).Encode(context.Background(), nil)
	assert.Error(t, err)
}

func TestGenerator_EncodeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := New(8).Encode(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}
