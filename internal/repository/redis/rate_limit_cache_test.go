package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haruup-service/internal/client"
)

func newTestCache(t *testing.T) (*RateLimitCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRateLimitCache(client.NewRedisClientFromConn(rdb)), mr
}

func TestDailyKey(t *testing.T) {
	day := time.Date(2025, 1, 11, 23, 59, 0, 0, time.UTC)
	require.Equal(t, "ratelimit:mission-complete:m-1:2025-01-11", DailyKey("mission-complete", "m-1", day))
}

func TestRateLimitCache_CheckAndIncrement_StopsAtLimit(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	key := "ratelimit:feature:member:2025-01-11"

	for i := 1; i <= 3; i++ {
		res, err := cache.CheckAndIncrement(ctx, key, 3, 3600)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, i, res.CurrentCount)
		require.Equal(t, 3, res.Limit)
	}

	res, err := cache.CheckAndIncrement(ctx, key, 3, 3600)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 3, res.CurrentCount)
	require.Greater(t, res.ResetAfterSeconds, int64(0))
	require.LessOrEqual(t, res.ResetAfterSeconds, int64(3600))

	value, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "3", value)
}

func TestRateLimitCache_CheckAndIncrement_ExpirySetOnFirstCallOnly(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	key := "ratelimit:feature:member:2025-01-11"

	_, err := cache.CheckAndIncrement(ctx, key, 10, 100)
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)

	_, err = cache.CheckAndIncrement(ctx, key, 10, 100)
	require.NoError(t, err)
	require.Equal(t, 60*time.Second, mr.TTL(key))

	mr.FastForward(61 * time.Second)
	require.False(t, mr.Exists(key))

	res, err := cache.CheckAndIncrement(ctx, key, 10, 100)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, 1, res.CurrentCount)
}

func TestRateLimitCache_CheckAndIncrement_KeyWithoutTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	key := "ratelimit:feature:member:2025-01-11"
	require.NoError(t, mr.Set(key, "5"))

	res, err := cache.CheckAndIncrement(context.Background(), key, 5, 100)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, int64(0), res.ResetAfterSeconds)
}

func TestRateLimitCache_CheckAndIncrement_Concurrent(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	key := "ratelimit:feature:member:2025-01-11"

	const limit = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := cache.CheckAndIncrement(ctx, key, limit, 100)
			assert.NoError(t, err)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, limit, allowed)
}

func TestRateLimitCache_GetCounterAndReset(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	key := "ratelimit:feature:member:2025-01-11"

	count, ttl, err := cache.GetCounter(ctx, key)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, ttl)

	_, err = cache.CheckAndIncrement(ctx, key, 3, 120)
	require.NoError(t, err)

	count, ttl, err = cache.GetCounter(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, int64(120), ttl)

	require.NoError(t, cache.ResetCounter(ctx, key))
	count, _, err = cache.GetCounter(ctx, key)
	require.NoError(t, err)
	require.Zero(t, count)
}
