package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"haruup-service/internal/client"
	rediscache "haruup-service/internal/repository/redis"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, clock *fakeClock) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := rediscache.NewRateLimitCache(client.NewRedisClientFromConn(rdb))
	seoul := time.FixedZone("KST", 9*60*60)
	return NewRateLimiter(store, seoul, zap.NewNop()).WithClock(clock.Now), mr
}

func TestRateLimiter_LimitThree(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 11, 12, 0, 0, 0, time.FixedZone("KST", 9*60*60))}
	limiter, _ := newTestLimiter(t, clock)
	ctx := context.Background()
	member := uuid.New()

	for i := 1; i <= 3; i++ {
		res, err := limiter.CheckAndIncrement(ctx, member, "ai-recommend", 3)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, i, res.CurrentCount)
	}

	res, err := limiter.CheckAndIncrement(ctx, member, "ai-recommend", 3)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 3, res.CurrentCount)
	require.Equal(t, 3, res.Limit)
	require.Equal(t, int64(12*60*60), res.ResetAfterSeconds)
}

func TestRateLimiter_EveryCallBeyondLimitDenied(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 11, 8, 0, 0, 0, time.UTC)}
	limiter, _ := newTestLimiter(t, clock)
	ctx := context.Background()
	member := uuid.New()

	for i := 1; i <= 10; i++ {
		res, err := limiter.CheckAndIncrement(ctx, member, "feature", 4)
		require.NoError(t, err)
		require.Equal(t, i <= 4, res.Allowed, "call %d", i)
	}
}

func TestRateLimiter_ExpiresAtLocalMidnight(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	clock := &fakeClock{t: time.Date(2025, 1, 11, 23, 0, 0, 0, kst)}
	limiter, mr := newTestLimiter(t, clock)
	ctx := context.Background()
	member := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := limiter.CheckAndIncrement(ctx, member, "feature", 2)
		require.NoError(t, err)
	}
	res, err := limiter.CheckAndIncrement(ctx, member, "feature", 2)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	key := rediscache.DailyKey("feature", member.String(), clock.Now())
	require.Equal(t, time.Hour, mr.TTL(key))

	clock.Advance(time.Hour + time.Second)
	mr.FastForward(time.Hour + time.Second)
	require.False(t, mr.Exists(key))

	res, err = limiter.CheckAndIncrement(ctx, member, "feature", 2)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, 1, res.CurrentCount)
}

func TestRateLimiter_FeaturesAndMembersAreIndependent(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 11, 8, 0, 0, 0, time.UTC)}
	limiter, _ := newTestLimiter(t, clock)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, err := limiter.CheckAndIncrement(ctx, a, "x", 1)
	require.NoError(t, err)

	res, err := limiter.CheckAndIncrement(ctx, a, "y", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = limiter.CheckAndIncrement(ctx, b, "x", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestRateLimiter_Enforce(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 11, 8, 0, 0, 0, time.UTC)}
	limiter, _ := newTestLimiter(t, clock)
	ctx := context.Background()
	member := uuid.New()

	_, err := limiter.Enforce(ctx, member, "feature", 1)
	require.NoError(t, err)

	_, err = limiter.Enforce(ctx, member, "feature", 1)
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	var exceeded *RateLimitExceededError
	require.True(t, errors.As(err, &exceeded))
	require.Equal(t, 1, exceeded.Limit)
	require.Equal(t, 1, exceeded.Current)
	require.Equal(t, "feature", exceeded.Feature)
	require.Equal(t, int64(7*60*60), exceeded.ResetAfterSeconds)
}

func TestRateLimiter_StatusAndReset(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 11, 8, 0, 0, 0, time.UTC)}
	limiter, _ := newTestLimiter(t, clock)
	ctx := context.Background()
	member := uuid.New()

	_, err := limiter.CheckAndIncrement(ctx, member, "feature", 2)
	require.NoError(t, err)

	status, err := limiter.Status(ctx, member, "feature", 2)
	require.NoError(t, err)
	require.True(t, status.Allowed)
	require.Equal(t, 1, status.CurrentCount)
	require.Equal(t, 1, status.Remaining())

	require.NoError(t, limiter.Reset(ctx, member, "feature"))
	status, err = limiter.Status(ctx, member, "feature", 2)
	require.NoError(t, err)
	require.Zero(t, status.CurrentCount)
}

func TestRateLimiter_FailsClosedWhenStoreIsDown(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 11, 8, 0, 0, 0, time.UTC)}
	limiter, mr := newTestLimiter(t, clock)
	mr.Close()

	res, err := limiter.CheckAndIncrement(context.Background(), uuid.New(), "feature", 5)
	require.ErrorIs(t, err, ErrRateLimiterUnavailable)
	require.False(t, res.Allowed)
}

func TestRateLimiter_RejectsBadArguments(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	limiter, _ := newTestLimiter(t, clock)

	_, err := limiter.CheckAndIncrement(context.Background(), uuid.New(), "", 5)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = limiter.CheckAndIncrement(context.Background(), uuid.New(), "feature", 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSecondsUntilMidnight(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	require.Equal(t, int64(1), secondsUntilMidnight(time.Date(2025, 1, 11, 23, 59, 59, 500, kst)))
	require.Equal(t, int64(24*60*60), secondsUntilMidnight(time.Date(2025, 1, 11, 0, 0, 0, 0, kst)))
	require.Equal(t, int64(90), secondsUntilMidnight(time.Date(2025, 1, 11, 23, 58, 30, 0, kst)))
}
