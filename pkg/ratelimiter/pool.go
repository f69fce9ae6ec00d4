package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// Stats represents the current state of a rate limiter
type Stats struct {
	AvailableTokens int
	Capacity        int
	Rate            time.Duration
}

// PooledRateLimiter keeps one limiter per node URL so that several readers
// sharing a node share its budget.
type PooledRateLimiter struct {
	limiters map[string]*RateLimiter
	mutex    sync.RWMutex
	rps      int
	burst    int
}

func NewPooledRateLimiter(rate time.Duration, burst int) *PooledRateLimiter {
	rps := 1
	if rate > 0 {
		rps = int(time.Second / rate)
	}
	return NewPooledRateLimiterFromRPS(rps, burst)
}

func NewPooledRateLimiterFromRPS(rps, burst int) *PooledRateLimiter {
	return &PooledRateLimiter{
		limiters: make(map[string]*RateLimiter),
		rps:      rps,
		burst:    burst,
	}
}

// Wait waits for permission to make a request to the specified node
func (p *PooledRateLimiter) Wait(ctx context.Context, node string) error {
	return p.getLimiter(node).Wait(ctx)
}

// TryAcquire attempts to acquire permission without blocking
func (p *PooledRateLimiter) TryAcquire(node string) bool {
	return p.getLimiter(node).TryAcquire()
}

func (p *PooledRateLimiter) getLimiter(node string) *RateLimiter {
	p.mutex.RLock()
	limiter, exists := p.limiters[node]
	p.mutex.RUnlock()

	if exists {
		return limiter
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := p.limiters[node]; exists {
		return limiter
	}

	limiter = NewRateLimiterFromRPS(p.rps, p.burst)
	p.limiters[node] = limiter
	return limiter
}

// Close closes all rate limiters
func (p *PooledRateLimiter) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, limiter := range p.limiters {
		limiter.Close()
	}
	p.limiters = make(map[string]*RateLimiter)
}

// GetStats returns statistics for all nodes
func (p *PooledRateLimiter) GetStats() map[string]Stats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	stats := make(map[string]Stats, len(p.limiters))
	for node, limiter := range p.limiters {
		available, capacity, rate := limiter.GetStats()
		stats[node] = Stats{
			AvailableTokens: available,
			Capacity:        capacity,
			Rate:            rate,
		}
	}
	return stats
}
