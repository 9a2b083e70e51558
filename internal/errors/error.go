package errors

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var (
	// common errors
	ErrNotFound         = errors.New("record not found")
	ErrMailboxMissing   = errors.New("mailbox is missing")
	ErrFolderMissing    = errors.New("folder is missing")
	ErrSizeMismatch     = errors.New("stored artifact size does not match fetched content")
	ErrAlreadyRunning   = errors.New("sync already running")
	ErrSourceNotEnabled = errors.New("message source is not configured")

	// ErrDeltaTokenExpired signals that the remote change-tracking state is no
	// longer valid and the folder must fall back to a date-window sync.
	ErrDeltaTokenExpired = errors.New("change tracking state is no longer valid")
)

// StatusError carries an HTTP status from the remote source.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned %s", e.Status)
}

// RateLimitError is a 429 from the remote source. RetryAfter is zero when the
// server did not declare a retry interval.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("remote rate limit hit, retry after %s", e.RetryAfter)
}

// RetryExhaustedError wraps the last error after all retry attempts failed.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a remote rate-limit response.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsRetryExhausted reports whether err is a transient failure that outlived
// every retry attempt.
func IsRetryExhausted(err error) bool {
	var ree *RetryExhaustedError
	return errors.As(err, &ree)
}

// IsDeltaInvalid reports whether err means the delta token can no longer be
// presented to the remote source.
func IsDeltaInvalid(err error) bool {
	return errors.Is(err, ErrDeltaTokenExpired)
}

// IsTransient reports whether err is worth retrying: rate limits, retryable
// HTTP statuses, and network transport failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// RetryAfterOf returns the server-declared retry interval, if any.
func RetryAfterOf(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}
