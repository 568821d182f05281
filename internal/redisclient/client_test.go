package redisclient

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingKeyIsStableAndModelScoped(t *testing.T) {
	a := EmbeddingKey("text-embedding-3-small", "Ancient Egypt Explorer")
	b := EmbeddingKey("text-embedding-3-small", "Ancient Egypt Explorer")
	c := EmbeddingKey("text-embedding-3-large", "Ancient Egypt Explorer")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "embedding:"))
	assert.Len(t, strings.TrimPrefix(a, "embedding:"), 64)
}

func TestEmbeddingKeySeparatesModelFromText(t *testing.T) {
	assert.NotEqual(t, EmbeddingKey("ab", "c"), EmbeddingKey("a", "bc"))
}

func TestLockLifecycle(t *testing.T) {
	t.Skip("Integration test - requires redis")

	c, err := NewClient("localhost:6379", "", 0)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	token, err := c.AcquireLock(ctx, "vector-sync-test", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	second, err := c.AcquireLock(ctx, "vector-sync-test", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)

	require.NoError(t, c.ReleaseLock(ctx, "vector-sync-test", "someone-else"))
	second, err = c.AcquireLock(ctx, "vector-sync-test", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)

	require.NoError(t, c.ReleaseLock(ctx, "vector-sync-test", token))
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	t.Skip("Integration test - requires redis")

	c, err := NewClient("localhost:6379", "", 0)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, hit, err := c.GetEmbedding(ctx, "m", "never cached")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetEmbedding(ctx, "m", "cached", []float32{0.1, 0.2}, time.Minute))
	vec, hit, err := c.GetEmbedding(ctx, "m", "cached")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}
