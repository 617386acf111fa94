package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"haruup-service/internal/models"
	rediscache "haruup-service/internal/repository/redis"
	"haruup-service/internal/util"
)

// RateLimitStore is the atomic counter backend of the daily limiter.
type RateLimitStore interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, expireSeconds int64) (models.RateLimitResult, error)
	GetCounter(ctx context.Context, key string) (int, int64, error)
	ResetCounter(ctx context.Context, key string) error
}

// RateLimiter enforces per-member, per-feature daily quotas that reset at local midnight.
// Store failures fail closed: callers get ErrRateLimiterUnavailable and the call is not let through.
type RateLimiter struct {
	store    RateLimitStore
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

func NewRateLimiter(store RateLimitStore, location *time.Location, logger *zap.Logger) *RateLimiter {
	if location == nil {
		location = time.UTC
	}
	return &RateLimiter{
		store:    store,
		location: location,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source; used by tests.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// CheckAndIncrement counts one call for (memberID, feature, today). A denied call is reported
// through Allowed=false, not through an error.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, memberID uuid.UUID, feature string, dailyLimit int) (models.RateLimitResult, error) {
	if feature == "" || dailyLimit <= 0 {
		return models.RateLimitResult{}, fmt.Errorf("%w: feature and positive limit required", ErrInvalidInput)
	}

	now := l.now().In(l.location)
	key := rediscache.DailyKey(feature, memberID.String(), now)

	result, err := l.store.CheckAndIncrement(ctx, key, dailyLimit, secondsUntilMidnight(now))
	if err != nil {
		l.logger.Error("Rate limiter store failed, rejecting call",
			util.String("feature", feature),
			util.String("member_id", memberID.String()),
			util.ErrorField(err))
		return models.RateLimitResult{}, fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
	}
	return result, nil
}

// Enforce is CheckAndIncrement that turns a denial into a *RateLimitExceededError.
func (l *RateLimiter) Enforce(ctx context.Context, memberID uuid.UUID, feature string, dailyLimit int) (models.RateLimitResult, error) {
	result, err := l.CheckAndIncrement(ctx, memberID, feature, dailyLimit)
	if err != nil {
		return result, err
	}
	if !result.Allowed {
		l.logger.Info("Daily rate limit exceeded",
			util.String("feature", feature),
			util.String("member_id", memberID.String()),
			util.Int("limit", dailyLimit))
		return result, &RateLimitExceededError{
			Feature:           feature,
			Limit:             result.Limit,
			Current:           result.CurrentCount,
			ResetAfterSeconds: result.ResetAfterSeconds,
		}
	}
	return result, nil
}

// Status reads today's counter without counting a call.
func (l *RateLimiter) Status(ctx context.Context, memberID uuid.UUID, feature string, dailyLimit int) (models.RateLimitResult, error) {
	now := l.now().In(l.location)
	count, ttl, err := l.store.GetCounter(ctx, rediscache.DailyKey(feature, memberID.String(), now))
	if err != nil {
		return models.RateLimitResult{}, fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
	}
	return models.RateLimitResult{
		Allowed:           count < dailyLimit,
		CurrentCount:      count,
		Limit:             dailyLimit,
		ResetAfterSeconds: ttl,
	}, nil
}

// Reset drops today's counter.
func (l *RateLimiter) Reset(ctx context.Context, memberID uuid.UUID, feature string) error {
	now := l.now().In(l.location)
	if err := l.store.ResetCounter(ctx, rediscache.DailyKey(feature, memberID.String(), now)); err != nil {
		return fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
	}
	l.logger.Info("Rate limit counter reset",
		util.String("feature", feature),
		util.String("member_id", memberID.String()))
	return nil
}

func secondsUntilMidnight(now time.Time) int64 {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	secs := int64(math.Ceil(next.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
