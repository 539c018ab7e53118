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

type overview struct {
	Count int    `json:"count"`
	Top   string `json:"top"`
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCache_RoundTripAndExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	c := New(client, 2*time.Second, nil)
	ctx := context.Background()

	var got overview
	assert.False(t, c.GetJSON(ctx, "overview", &got), "empty cache misses")

	c.SetJSON(ctx, "overview", overview{Count: 3, Top: "click"})
	require.True(t, c.GetJSON(ctx, "overview", &got))
	assert.Equal(t, overview{Count: 3, Top: "click"}, got)
	assert.True(t, mr.Exists(keyPrefix+"overview"))

	mr.FastForward(3 * time.Second)
	assert.False(t, c.GetJSON(ctx, "overview", &got), "entry expires after the TTL")
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	mr, client := setupTestRedis(t)
	c := New(client, time.Minute, nil)
	require.NoError(t, mr.Set(keyPrefix+"overview", "{not json"))

	var got overview
	assert.False(t, c.GetJSON(context.Background(), "overview", &got))
}

func TestCache_RedisDownIsMiss(t *testing.T) {
	mr, client := setupTestRedis(t)
	c := New(client, time.Minute, nil)
	mr.Close()

	ctx := context.Background()
	c.SetJSON(ctx, "overview", overview{Count: 1})
	var got overview
	assert.False(t, c.GetJSON(ctx, "overview", &got))
	assert.Error(t, c.Ping(ctx))
}

func TestCache_Disabled(t *testing.T) {
	c := New(nil, time.Minute, nil)
	ctx := context.Background()

	assert.False(t, c.Enabled())
	c.SetJSON(ctx, "overview", overview{Count: 1})
	var got overview
	assert.False(t, c.GetJSON(ctx, "overview", &got))
	assert.NoError(t, c.Ping(ctx))

	var nilCache *Cache
	assert.False(t, nilCache.Enabled())
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewClient(ctx, Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
