package models

// RateLimitResult is the outcome of one daily limiter check.
type RateLimitResult struct {
	Allowed           bool  `json:"allowed"`
	CurrentCount      int   `json:"current_count"`
	Limit             int   `json:"limit"`
	ResetAfterSeconds int64 `json:"reset_after_seconds"`
}

// Remaining is how many calls are left today.
func (r RateLimitResult) Remaining() int {
	if r.CurrentCount >= r.Limit {
		return 0
	}
	return r.Limit - r.CurrentCount
}
