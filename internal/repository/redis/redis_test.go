package redis

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := NewClientFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	t.Cleanup(func() {
		_ = client.Close()
	})

	return mr, client
}

func TestKVStore_SetGetDelete(t *testing.T) {
	_, client := setupMiniredis(t)
	kv := NewKVStore(client, 0)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "preRevertState_ws1_m1", []byte(`{"files":[]}`)))

	value, ok, err := kv.Get(ctx, "preRevertState_ws1_m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"files":[]}`, string(value))

	require.NoError(t, kv.Delete(ctx, "preRevertState_ws1_m1"))

	_, ok, err = kv.Get(ctx, "preRevertState_ws1_m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStore_TTL(t *testing.T) {
	mr, client := setupMiniredis(t)
	kv := NewKVStore(client, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte("v")))
	assert.Equal(t, 5*time.Minute, mr.TTL("k"))

	mr.FastForward(6 * time.Minute)

	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStore_KeysByPrefix(t *testing.T) {
	_, client := setupMiniredis(t)
	kv := NewKVStore(client, 0)
	ctx := context.Background()

	for _, key := range []string{
		"preRevertState_ws1_m1",
		"preRevertState_ws1_m2",
		"preRevertState_ws2_m1",
		"preRevertState_ws*_m1",
	} {
		require.NoError(t, kv.Set(ctx, key, []byte("x")))
	}

	keys, err := kv.Keys(ctx, "preRevertState_ws1_")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"preRevertState_ws1_m1", "preRevertState_ws1_m2"}, keys)

	keys, err = kv.Keys(ctx, "preRevertState_ws*_")
	require.NoError(t, err)
	assert.Equal(t, []string{"preRevertState_ws*_m1"}, keys, "glob characters in the prefix are literal")
}

func TestRateLimiter_Allow(t *testing.T) {
	_, client := setupMiniredis(t)
	limiter := NewRateLimiter(client, 2, 1)
	fixed := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, fixed.Truncate(time.Minute).Add(time.Minute), res.ResetAt)

	other, err := limiter.Allow(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are limited independently")

	require.NoError(t, limiter.Reset(ctx, "client-a"))
	res, err = limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
