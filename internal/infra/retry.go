package infra

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"voxflow/internal/domain"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	JitterFraction float64

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Retryable overrides domain.IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// WithRetry executes fn, retrying transient failures with exponential
// backoff. Backoff sleeps honour ctx, so the caller's deadline bounds the
// total time spent.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = domain.IsRetryable
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt >= cfg.MaxRetries || !retryable(err) {
			return lastErr
		}

		delay := Backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Backoff returns the delay before retry number n (zero based):
// min(initial*multiplier^n, max) scaled by a random factor in [1-j, 1+j].
func Backoff(cfg RetryConfig, n int) time.Duration {
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	base := float64(cfg.InitialBackoff) * math.Pow(mult, float64(n))
	if cfg.MaxBackoff > 0 && base > float64(cfg.MaxBackoff) {
		base = float64(cfg.MaxBackoff)
	}
	if j := cfg.JitterFraction; j > 0 {
		if j > 1 {
			j = 1
		}
		base *= 1 + j*(2*rand.Float64()-1)
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}
