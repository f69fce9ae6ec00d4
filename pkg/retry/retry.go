package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 3
	DefaultInterval    = 500 * time.Millisecond
)

type Operation func() error

type ExponentialConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// MaxAttempts bounds the number of calls, 0 means bounded by time only.
	MaxAttempts int
	OnRetry     func(error, time.Duration)
}

// Permanent stops the retry loop; the wrapped error is returned as is.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

func Exponential(fn Operation, cfg ExponentialConfig) error {
	return ExponentialContext(context.Background(), fn, cfg)
}

// ExponentialContext retries fn with exponential backoff until it succeeds,
// returns a permanent error, runs out of attempts or ctx is done.
func ExponentialContext(ctx context.Context, fn Operation, cfg ExponentialConfig) error {
	if cfg.InitialInterval <= 0 {
		return errors.New("initial interval must be > 0")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	if cfg.MaxInterval > 0 {
		bo.MaxInterval = cfg.MaxInterval
	}
	if cfg.MaxElapsedTime > 0 {
		bo.MaxElapsedTime = cfg.MaxElapsedTime
	}

	var b backoff.BackOff = bo
	if cfg.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	return backoff.RetryNotify(backoff.Operation(fn), b, func(err error, next time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(err, next)
		}
	})
}

// Constant calls fn up to attempts times, sleeping interval between calls.
func Constant(ctx context.Context, fn Operation, interval time.Duration, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		var p *backoff.PermanentError
		if errors.As(err, &p) {
			return p.Err
		}
		if i < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
