package retry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	er "github.com/customeros/mailvault/internal/errors"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		RateLimitDelay: time.Millisecond,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastConfig(), er.IsTransient, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	permanent := &er.StatusError{StatusCode: http.StatusNotFound, Status: "404 Not Found"}

	_, err := Do(context.Background(), fastConfig(), er.IsTransient, func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var exhausted *er.RetryExhaustedError
	assert.False(t, errors.As(err, &exhausted), "permanent failure must not be wrapped as exhaustion")
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), er.IsTransient, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &er.StatusError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	calls := 0
	transient := &er.StatusError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}

	_, err := Do(context.Background(), fastConfig(), er.IsTransient, func(ctx context.Context) (int, error) {
		calls++
		return 0, transient
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *er.RetryExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)

	var se *er.StatusError
	require.True(t, errors.As(err, &se), "exhaustion must unwrap to the last underlying error")
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestDo_RateLimitHonorsRetryAfter(t *testing.T) {
	retryAfter := 50 * time.Millisecond
	calls := 0
	start := time.Now()

	_, err := Do(context.Background(), fastConfig(), er.IsTransient, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &er.RateLimitError{RetryAfter: retryAfter}
		}
		return 1, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), retryAfter)
}

func TestDo_CancellationAbortsDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Do(ctx, Config{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       time.Second,
		RateLimitDelay: time.Second,
	}, er.IsTransient, func(ctx context.Context) (int, error) {
		calls++
		return 0, &er.RateLimitError{RetryAfter: 10 * time.Second}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "cancellation must abort the sleep promptly")
}

func TestDo_DeltaInvalidIsNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), er.IsTransient, func(ctx context.Context) (int, error) {
		calls++
		return 0, er.ErrDeltaTokenExpired
	})

	require.True(t, er.IsDeltaInvalid(err))
	assert.Equal(t, 1, calls)
}
