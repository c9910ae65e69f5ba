package cache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopAlwaysMisses(t *testing.T) {
	var c MetadataCache = NoopMetadataCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Key("stores"), []string{"a"}, time.Minute))
	var got []string
	ok, err := c.Get(ctx, Key("stores"), &got)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Delete(ctx, Key("stores")))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "posdash:metadata:items", Key("items"))
	assert.Equal(t, "posdash:metadata:items:page:2", Key("items", "page", strconv.Itoa(2)))
}

// Runs only when a Redis instance is reachable at REDIS_ADDR.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	c := NewRedisMetadataCache(addr, os.Getenv("REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	key := Key("test", strconv.FormatInt(time.Now().UnixNano(), 10))
	t.Cleanup(func() { _ = c.Delete(context.Background(), key) })

	var missing map[string]int
	ok, err := c.Get(ctx, key, &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, map[string]int{"stores": 3}, time.Minute))
	var got map[string]int
	ok, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"stores": 3}, got)
}
