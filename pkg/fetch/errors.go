package fetch

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrRateLimitTimeout is returned when the rate limiter cannot grant a
	// token within the configured wait bound. Callers treat it like any
	// other transient failure.
	ErrRateLimitTimeout = errors.New("rate limiter wait timed out")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// TransientError represents a retryable upstream failure: timeouts,
// connection resets, and 5xx responses.
type TransientError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient upstream error (status %d): %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("transient network error: %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError represents a 4xx client error. It is never retried; the
// affected page or record is dropped and logged.
type PermanentError struct {
	URL        string
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent upstream error (status %d): %s: %s", e.StatusCode, e.URL, e.Status)
}

// IsTransient reports whether err may succeed on retry. Rate limiter
// timeouts count as transient.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrRateLimitTimeout)
}

// IsPermanent reports whether err is a non-retryable client error.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
