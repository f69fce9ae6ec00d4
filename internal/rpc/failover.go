package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fystack/storage-inspector/pkg/common/logger"
	"github.com/fystack/storage-inspector/pkg/retry"
)

var ErrNoProvider = errors.New("no available provider")

// FailoverConfig defines runtime behavior of the failover system.
type FailoverConfig struct {
	EnableBlacklisting bool
	ErrorThreshold     int
	SlowResponse       time.Duration
	Retry              retry.ExponentialConfig
}

func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		EnableBlacklisting: true,
		ErrorThreshold:     5,
		SlowResponse:       3 * time.Second,
		Retry: retry.ExponentialConfig{
			InitialInterval: retry.DefaultInterval,
			MaxInterval:     5 * time.Second,
			MaxAttempts:     retry.DefaultMaxAttempts,
		},
	}
}

// LogThrottler prevents log spam by rate-limiting similar log messages
type LogThrottler struct {
	mu            sync.Mutex
	lastLogTimes  map[string]time.Time
	throttleDelay time.Duration
}

func NewLogThrottler(delay time.Duration) *LogThrottler {
	return &LogThrottler{
		lastLogTimes:  make(map[string]time.Time),
		throttleDelay: delay,
	}
}

func (lt *LogThrottler) ShouldLog(key string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	now := time.Now()
	lastTime, exists := lt.lastLogTimes[key]
	if !exists || now.Sub(lastTime) > lt.throttleDelay {
		lt.lastLogTimes[key] = now
		return true
	}
	return false
}

// Failover spreads calls over several providers of client type T, moving
// away from a provider once it is rate limited or unreachable.
type Failover[T NetworkClient] struct {
	mu           sync.RWMutex
	providers    []*Provider
	currentIndex int
	config       FailoverConfig
	logThrottler *LogThrottler
}

func NewFailover[T NetworkClient](config *FailoverConfig) *Failover[T] {
	if config == nil {
		c := DefaultFailoverConfig()
		config = &c
	}
	return &Failover[T]{
		currentIndex: -1,
		config:       *config,
		logThrottler: NewLogThrottler(30 * time.Second),
	}
}

// AddProvider adds a provider, ensuring its Client is of type T
func (f *Failover[T]) AddProvider(p *Provider) error {
	if _, ok := p.Client.(T); !ok {
		return fmt.Errorf("invalid provider client type: expected %T, got %T", *new(T), p.Client)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.providers = append(f.providers, p)
	if f.currentIndex == -1 {
		f.currentIndex = 0
	}
	logger.Debug("Added provider", "name", p.Name, "url", p.URL)
	return nil
}

func (f *Failover[T]) Providers() []*Provider {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*Provider(nil), f.providers...)
}

// GetBestProvider returns the current provider, or the next available one
// when the current provider is blacklisted.
func (f *Failover[T]) GetBestProvider() (*Provider, error) {
	f.mu.RLock()
	if len(f.providers) == 0 {
		f.mu.RUnlock()
		return nil, fmt.Errorf("%w: none configured", ErrNoProvider)
	}
	providers := append([]*Provider(nil), f.providers...)
	curIdx := f.currentIndex
	f.mu.RUnlock()

	for _, p := range providers {
		if p.IsExpiredBlacklist() {
			logger.Info("Recovering expired blacklisted provider", "provider", p.Name)
			p.Recover()
		}
	}

	if curIdx >= 0 && curIdx < len(providers) && providers[curIdx].IsAvailable() {
		return providers[curIdx], nil
	}
	return f.findNextAvailableProvider()
}

func (f *Failover[T]) findNextAvailableProvider() (*Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := 0; i < len(f.providers); i++ {
		idx := (f.currentIndex + i + 1) % len(f.providers)
		provider := f.providers[idx]
		if provider.IsAvailable() {
			logger.Info("Switching to provider", "from_index", f.currentIndex, "to_index", idx, "provider", provider.Name)
			f.currentIndex = idx
			return provider, nil
		}
	}

	if !f.config.EnableBlacklisting {
		return nil, ErrNoProvider
	}

	// every provider is blacklisted: bring back the one that expires first
	blacklisted := append([]*Provider(nil), f.providers...)
	sort.Slice(blacklisted, func(i, j int) bool {
		return blacklisted[i].BlacklistedUntil.Before(blacklisted[j].BlacklistedUntil)
	})
	first := blacklisted[0]
	first.Recover()
	for i, p := range f.providers {
		if p == first {
			f.currentIndex = i
		}
	}
	logger.Warn("Emergency recovery", "provider", first.Name)
	return first, nil
}

// Execute runs fn against the best provider, retrying with backoff and
// switching providers on failures that blacklist the current one. Errors
// wrapped with retry.Permanent are returned without retrying.
func (f *Failover[T]) Execute(ctx context.Context, fn func(T) error) error {
	cfg := f.config.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(err error, next time.Duration) {
			logger.Debug("Retrying RPC call", "err", err, "next", next)
		}
	}

	return retry.ExponentialContext(ctx, func() error {
		provider, err := f.GetBestProvider()
		if err != nil {
			return retry.Permanent(err)
		}
		return f.executeCore(provider, fn)
	}, cfg)
}

func (f *Failover[T]) executeCore(provider *Provider, fn func(T) error) error {
	client, ok := provider.Client.(T)
	if !ok {
		return retry.Permanent(fmt.Errorf("provider client type mismatch: expected %T, got %T", *new(T), provider.Client))
	}

	start := time.Now()
	err := fn(client)
	elapsed := time.Since(start)

	if err == nil {
		provider.Success(elapsed)
		return nil
	}
	if retry.IsPermanent(err) {
		return err
	}

	issue := f.analyzeError(err, elapsed)
	if issue.MarkUnhealthy && f.config.EnableBlacklisting {
		if f.logThrottler.ShouldLog("switch_" + provider.Name) {
			logger.Warn("Blacklisting provider",
				"provider", provider.Name,
				"error_type", issue.Reason,
				"blacklist_duration", issue.Cooldown,
			)
		}
		provider.Blacklist(issue.Cooldown)
	} else {
		provider.Fail(f.config.ErrorThreshold)
	}
	return err
}

// ProviderIssue represents an analyzed error state from a provider
type ProviderIssue struct {
	Reason        string
	Cooldown      time.Duration
	MarkUnhealthy bool
}

var errorPatterns = []struct {
	patterns []string
	reason   string
	cooldown time.Duration
}{
	{[]string{"rate limit", "429", "too many requests"}, "rate_limit", 5 * time.Minute},
	{[]string{"-32001", "exceeded the quota", "quota usage", "quota limit"}, "quota_exceeded", 5 * time.Minute},
	{[]string{"forbidden", "403"}, "forbidden", 24 * time.Hour},
	{[]string{"timeout", "deadline"}, "timeout", 3 * time.Minute},
	{[]string{"eof", "connection reset", "connection refused", "broken pipe"}, "connection_error", 2 * time.Minute},
	{[]string{"-32007", "batch limit exceeded", "batch too large"}, "batch_limit", time.Minute},
}

// analyzeError determines error type and suggests cooldown policy
func (f *Failover[T]) analyzeError(err error, elapsed time.Duration) ProviderIssue {
	msg := strings.ToLower(err.Error())
	for _, pattern := range errorPatterns {
		for _, p := range pattern.patterns {
			if strings.Contains(msg, p) {
				return ProviderIssue{Reason: pattern.reason, Cooldown: pattern.cooldown, MarkUnhealthy: true}
			}
		}
	}

	if f.config.SlowResponse > 0 && elapsed > f.config.SlowResponse {
		return ProviderIssue{Reason: "slow_response", Cooldown: 2 * time.Minute, MarkUnhealthy: true}
	}
	return ProviderIssue{Reason: "generic_error"}
}
