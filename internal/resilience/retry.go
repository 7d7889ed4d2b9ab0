package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig shapes a retry loop: how many attempts to make, how the
// delay between them grows, and which errors are worth another try.
type RetryConfig struct {
	// MaxAttempts bounds the total calls made, first try included.
	// 1 disables retries. Defaults to 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Defaults to 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the grown delay. Defaults to 30s.
	MaxBackoff time.Duration

	// Multiplier scales the delay after each failed attempt. Defaults to 2.
	Multiplier float64

	// JitterFraction spreads each delay by up to this fraction in either
	// direction so parallel callers do not retry in lockstep. Defaults
	// to 0.25.
	JitterFraction float64

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry fires before each backoff sleep with the 1-based number of
	// the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is tuned for HTTP APIs: three attempts, half a
// second before the first retry, doubling to a 30s ceiling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Do runs fn until it succeeds, the error is not retryable, the attempts
// run out, or ctx ends. The error from the last attempt comes back as-is
// so callers can still classify it.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that produce a value. On failure the zero value
// comes back alongside the last attempt's error.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = withDefaults(cfg)

	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}

		// A dead context is checked directly: fn may have wrapped the
		// cancellation in something retryable looking.
		if ctx.Err() != nil || !retryable(err) || attempt >= cfg.MaxAttempts {
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if sleep(ctx, Backoff(attempt-1, cfg)) != nil {
			return zero, err
		}
	}
}

// sleep blocks for d or until ctx ends, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func withDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// Backoff returns the jittered delay before retry number attempt
// (0-based) under cfg. Exported so callers that schedule their own waits,
// like the between-rounds delay after a rate-limited lookup batch, share
// one computation.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}

	if cfg.JitterFraction > 0 {
		d *= 1 + cfg.JitterFraction*(2*rand.Float64()-1)
	}

	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// RetryLogger builds an OnRetry hook that logs each failed attempt under
// the given service and operation labels.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying after failure",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
