package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a test Redis client using miniredis
func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := &Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestClientSetGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:key1", "value1", time.Hour))

	val, err := client.Get(ctx, "test:key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", val)
}

func TestClientDeleteAndExists(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:key1", "value1", time.Hour))

	exists, err := client.Exists(ctx, "test:key1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Delete(ctx, "test:key1"))

	exists, err = client.Exists(ctx, "test:key1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClientTTL(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:key1", "value1", time.Hour))

	ttl, err := client.TTL(ctx, "test:key1")
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestSendLimiterBudget(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewSendLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "email:user:1", 3)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}

	ok, err := limiter.Allow(ctx, "email:user:1", 3)
	require.NoError(t, err)
	assert.False(t, ok, "fourth request must exceed the budget")
}

func TestSendLimiterKeysAreIndependent(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewSendLimiter(client)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "email:user:1", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(ctx, "email:user:1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "email:user:2", 1)
	require.NoError(t, err)
	assert.True(t, ok, "another user's budget is untouched")
}

func TestSendLimiterWindowExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewSendLimiter(client)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "email:global", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Hour)

	ok, err = limiter.Allow(ctx, "email:global", 1)
	require.NoError(t, err)
	assert.True(t, ok, "budget resets after the window expires")
}
