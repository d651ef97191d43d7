package xerrors

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures exponential backoff retry behavior. The
// backoff schedule itself is delegated to cenkalti/backoff/v4 so
// jitter and the
// ctx-aware clock come from a maintained implementation rather than a
// hand-rolled one.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay float64 // seconds
	MaxDelay     float64 // seconds
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig matches spec §4.4's throttle backoff: base 100ms,
// cap 5s, factor 2.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   8,
		InitialDelay: 0.1,
		MaxDelay:     5,
		Multiplier:   2,
		Jitter:       true,
	}
}

// GraphConflictRetryConfig matches spec §4.8's optimistic-write retry:
// 50ms * 2^n, capped at 5 attempts.
func GraphConflictRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   4, // initial attempt + 4 retries = 5 attempts
		InitialDelay: 0.05,
		MaxDelay:     5,
		Multiplier:   2,
		Jitter:       false,
	}
}

func (c RetryConfig) toBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = secondsToDuration(c.InitialDelay)
	eb.MaxInterval = secondsToDuration(c.MaxDelay)
	eb.Multiplier = c.Multiplier
	eb.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not elapsed time
	if !c.Jitter {
		eb.RandomizationFactor = 0
	}
	return backoff.WithMaxRetries(eb, uint64(c.MaxRetries))
}

// Retry executes fn, retrying on error per cfg's exponential backoff
// schedule. It stops early if ctx is cancelled or if fn's error is a
// *StoreError flagged non-retryable (spec §7: e.g. InvalidArgument
// must never be retried — retrying an oversized-payload rejection 8x
// just delays reporting the same rejection).
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := fn()
		lastErr = err
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(cfg.toBackOff(), ctx)); err != nil {
		return fmt.Errorf("retry exhausted: %w", lastErr)
	}
	return nil
}

// RetryWithResult is Retry for functions that also return a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		result, err = fn()
		lastErr = err
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(cfg.toBackOff(), ctx)); err != nil {
		var zero T
		return zero, fmt.Errorf("retry exhausted: %w", lastErr)
	}
	return result, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
