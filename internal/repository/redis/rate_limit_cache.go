package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"haruup-service/internal/client"
	"haruup-service/internal/models"
	"haruup-service/internal/util"
)

const rateLimitPrefix = "ratelimit:"

// checkAndIncrementScript compares, increments and sets the expiry in one round trip,
// so concurrent requests for the same key can never overshoot the limit.
//
// KEYS[1] counter key, ARGV[1] limit, ARGV[2] expiry seconds for a fresh key.
// Returns {allowed, count, ttl}.
var checkAndIncrementScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
    return {0, current, redis.call('TTL', KEYS[1])}
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
end
return {1, count, redis.call('TTL', KEYS[1])}
`)

type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// DailyKey builds ratelimit:{feature}:{memberID}:{yyyy-mm-dd}.
func DailyKey(feature, memberID string, day time.Time) string {
	return fmt.Sprintf("%s%s:%s:%s", rateLimitPrefix, feature, memberID, day.Format("2006-01-02"))
}

// CheckAndIncrement atomically counts one call against key unless limit is already reached.
// A key created by this call expires after expireSeconds.
func (c *RateLimitCache) CheckAndIncrement(ctx context.Context, key string, limit int, expireSeconds int64) (models.RateLimitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if expireSeconds < 1 {
		expireSeconds = 1
	}

	raw, err := c.client.RunScript(ctx, checkAndIncrementScript, []string{key}, limit, expireSeconds)
	if err != nil {
		util.Error("Failed to execute daily rate limit script",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Error(err))
		return models.RateLimitResult{}, fmt.Errorf("failed to execute daily rate limit: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return models.RateLimitResult{}, fmt.Errorf("unexpected result format from rate limit script")
	}
	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)
	ttl, _ := values[2].(int64)

	result := models.RateLimitResult{
		Allowed:           allowed == 1,
		CurrentCount:      int(count),
		Limit:             limit,
		ResetAfterSeconds: clampTTL(ttl),
	}

	util.Debug("Daily rate limit check",
		zap.String("key", key),
		zap.Bool("allowed", result.Allowed),
		zap.Int("current_count", result.CurrentCount),
		zap.Int("limit", limit))

	return result, nil
}

// GetCounter returns the current count and remaining TTL in seconds. A missing key is 0/0.
func (c *RateLimitCache) GetCounter(ctx context.Context, key string) (int, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	countStr, err := c.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to get rate limit counter: %w", err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		util.Error("Invalid counter format",
			zap.String("key", key),
			zap.String("count_str", countStr),
			zap.Error(err))
		return 0, 0, fmt.Errorf("invalid counter format: %w", err)
	}

	ttl, err := c.client.TTL(ctx, key)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get rate limit ttl: %w", err)
	}

	return count, clampTTL(int64(ttl / time.Second)), nil
}

func (c *RateLimitCache) ResetCounter(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, key); err != nil {
		util.Error("Failed to reset rate limit counter",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}

	util.Debug("Rate limit counter reset", zap.String("key", key))
	return nil
}

// TTL is -1 for a key without expiry and -2 for a missing key.
func clampTTL(ttl int64) int64 {
	if ttl < 0 {
		return 0
	}
	return ttl
}
