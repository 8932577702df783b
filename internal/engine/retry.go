package engine

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// RetryConfig configures the retry handler (§4.8).
type RetryConfig struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MinDelay       time.Duration
	JitterFraction float64 // +/- this fraction of the computed backoff
}

// DefaultRetryConfig matches the spec defaults: up to 5 attempts, 200ms base delay,
// 50ms floor, +/-25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		BaseDelay:      200 * time.Millisecond,
		MinDelay:       50 * time.Millisecond,
		JitterFraction: 0.25,
	}
}

// WithRetry wraps any transient-database unit of work. op runs at most
// cfg.MaxRetries times in total, retrying while it returns a RetryableError, with exponential
// backoff (base * 2^(attempt-1)) plus +/-jitterFraction jitter, floored at
// MinDelay. On exhaustion the last error propagates unwrapped-of-context
// (still a RetryableError, so callers can tell transient-exhausted apart
// from a first-attempt hard failure).
func WithRetry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return &CancelledError{Reason: err.Error()}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoffDelay(cfg, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &CancelledError{Reason: ctx.Err().Error()}
		}
	}
	return lastErr
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	base := cfg.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	backoff := base * time.Duration(1<<uint(attempt-1))

	jittered := jitter(backoff, cfg.JitterFraction)
	if jittered < cfg.MinDelay {
		return cfg.MinDelay
	}
	return jittered
}

// jitter applies +/-fraction jitter to d using crypto/rand, matching the
// reference implementation's use of a cryptographic source for the jitter
// draw rather than math/rand.
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	spread := int64(float64(d) * fraction)
	if spread <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(2*spread+1))
	if err != nil {
		return d
	}
	offset := n.Int64() - spread
	return d + time.Duration(offset)
}
