package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soorma-platform/soorma/pkg/embedding"
)

func TestProvider_Deterministic(t *testing.T) {
	p := New(64)
	a, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestProvider_SimilarTextScoresHigherThanUnrelated(t *testing.T) {
	p := New(128)
	ctx := context.Background()

	base, err := p.Embed(ctx, "the quick brown fox jumps")
	require.NoError(t, err)
	similar, err := p.Embed(ctx, "the quick brown fox leaps")
	require.NoError(t, err)
	unrelated, err := p.Embed(ctx, "quantum economics regulation filing")
	require.NoError(t, err)

	simScore := embedding.Cosine(base, similar)
	unrelatedScore := embedding.Cosine(base, unrelated)
	assert.Greater(t, simScore, unrelatedScore)
}

func TestProvider_DefaultsDimOnNonPositive(t *testing.T) {
	p := New(0)
	assert.Equal(t, 256, p.Dim())
}
