package auth

import (
	"sync"
	"time"
)

/*
RateLimiter is a token bucket limiter guarding the authentication path, so
a flood of bad credentials cannot grind signature checks.
*/
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64
	capacity int64
	tokens   float64
	last     time.Time
}

// NewRateLimiter allows rate operations per interval.
func NewRateLimiter(rate int64, interval time.Duration) *RateLimiter {
	if rate <= 0 || interval <= 0 {
		panic("rate and interval must be positive")
	}

	return &RateLimiter{
		rate:     float64(rate) / interval.Seconds(),
		capacity: rate,
		tokens:   float64(rate),
		last:     time.Now(),
	}
}

// Allow reports whether one more operation fits the budget.
func (limiter *RateLimiter) Allow() bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(limiter.last).Seconds()
	limiter.last = now

	limiter.tokens = min(float64(limiter.capacity), limiter.tokens+elapsed*limiter.rate)

	if limiter.tokens < 1.0 {
		return false
	}

	limiter.tokens--
	return true
}
