package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrLevelNotFound          = errors.New("level not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidState           = errors.New("invalid state")
	ErrRateLimitExceeded      = errors.New("rate limit exceeded")
	ErrRateLimiterUnavailable = errors.New("rate limiter unavailable")
)

// RateLimitExceededError carries the counter state of a rejected call.
type RateLimitExceededError struct {
	Feature           string
	Limit             int
	Current           int
	ResetAfterSeconds int64
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("daily limit for %s reached (%d/%d), resets in %ds",
		e.Feature, e.Current, e.Limit, e.ResetAfterSeconds)
}

func (e *RateLimitExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}
