package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket over golang.org/x/time/rate.
type RateLimiter struct {
	limiter *rate.Limiter
	burst   int
	rps     int
}

// NewRateLimiter creates a limiter from the time between two tokens
// (e.g., 100ms for 10 RPS) and the bucket size.
func NewRateLimiter(ratePerToken time.Duration, burst int) *RateLimiter {
	rps := 1
	if ratePerToken > 0 {
		rps = int(time.Second / ratePerToken)
	}
	return NewRateLimiterFromRPS(rps, burst)
}

// NewRateLimiterFromRPS creates a rate limiter directly from RPS
func NewRateLimiterFromRPS(rps int, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		burst:   burst,
		rps:     rps,
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// TryAcquire attempts to acquire a token without blocking
func (rl *RateLimiter) TryAcquire() bool {
	return rl.limiter.Allow()
}

// Close is a no-op, golang.org/x/time/rate holds no resources.
func (rl *RateLimiter) Close() {}

// GetStats returns current limiter statistics
func (rl *RateLimiter) GetStats() (available, capacity int, rateDuration time.Duration) {
	// Tokens is an estimate and may be negative while callers are queued
	available = int(rl.limiter.Tokens())
	if available < 0 {
		available = 0
	}
	capacity = rl.burst
	rateDuration = time.Second / time.Duration(rl.rps)
	return
}
