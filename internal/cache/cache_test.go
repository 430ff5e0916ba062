package cache

import (
	"context"
	"testing"
	"time"

	"storefront-payments/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	val, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestMemoryStore_PerEntryTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour).(*memoryStore)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	now = now.Add(59 * time.Second)
	_, ok, _ := store.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStore_Bounded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, time.Hour)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), time.Minute))

	_, ok, _ := store.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok, _ = store.Get(ctx, "c")
	assert.True(t, ok)
}

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestRedisStore_SetGet(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()
	store := NewRedisStore(client, "rates:")

	_, ok, err := store.Get(ctx, "BTC:GBP")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "BTC:GBP", []byte(`{"rate":"0.000025"}`), time.Minute))
	assert.True(t, mr.Exists("rates:BTC:GBP"))

	val, ok, err := store.Get(ctx, "BTC:GBP")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"rate":"0.000025"}`, string(val))

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "BTC:GBP")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewRedisStore(client, "")
	mr.Close()

	_, _, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr, _ := setupMiniredis(t)

	client, err := NewRedisClient(context.Background(), config.Redis{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	_, err = NewRedisClient(context.Background(), config.Redis{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}
