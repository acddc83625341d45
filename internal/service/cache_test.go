package service

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping integration test: REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}

	c := NewRedisCache(client, time.Minute)
	id := fmt.Sprintf("it_test_%d", time.Now().UnixNano())
	defer client.Del(ctx, c.Prefix+id)

	ok, err := c.Reserve(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Reserve(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.MarkSucceeded(ctx, id))
	val, err := client.Get(ctx, c.Prefix+id).Result()
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", val)

	ttl, err := client.TTL(ctx, c.Prefix+id).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, c.Release(ctx, id))
	ok, err = c.Reserve(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}
