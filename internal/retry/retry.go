package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	er "github.com/customeros/mailvault/internal/errors"
)

const (
	DefaultMaxAttempts    = 5
	DefaultBaseDelay      = 500 * time.Millisecond
	DefaultMaxDelay       = 30 * time.Second
	DefaultRateLimitDelay = 10 * time.Second
	backoffGrowthFactor   = 2
)

// Classifier decides whether an error is worth another attempt.
type Classifier func(err error) bool

type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		RateLimitDelay: DefaultRateLimitDelay,
	}
}

// Do runs op with up to cfg.MaxAttempts attempts. Errors the classifier
// rejects are returned immediately. A rate-limit error sleeps for the
// server-declared interval when present, otherwise cfg.RateLimitDelay; every
// other retryable error sleeps on a jittered exponential schedule. Sleeps
// abort promptly on context cancellation. Exhausting all attempts returns a
// *errors.RetryExhaustedError wrapping the last error.
func Do[T any](ctx context.Context, cfg Config, classify Classifier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if classify == nil {
		classify = er.IsTransient
	}

	b := &backoff.Backoff{
		Min:    cfg.BaseDelay,
		Max:    cfg.MaxDelay,
		Factor: backoffGrowthFactor,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !classify(err) {
			return zero, err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := b.Duration()
		if er.IsRateLimited(err) {
			delay = er.RetryAfterOf(err)
			if delay <= 0 {
				delay = cfg.RateLimitDelay
			}
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &er.RetryExhaustedError{Attempts: cfg.MaxAttempts, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
