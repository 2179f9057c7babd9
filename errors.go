package discourse

import (
	"errors"
	"fmt"
	"time"
)

// Error type constants used in ClientError.Type.
const (
	// ErrorTypeTransient marks retryable upstream failures (network errors,
	// 429, 5xx). Surfaced only after the retry budget is exhausted.
	ErrorTypeTransient = "Transient"
	// ErrorTypeAuth marks 401/403 responses and signature failures. Never retried.
	ErrorTypeAuth = "Auth"
	// ErrorTypeClient marks non-retryable 4xx responses other than 401/403/429.
	ErrorTypeClient = "Client"
	// ErrorTypeValidation marks response bodies that fail decoding, and
	// invalid construction-time configuration. Never retried.
	ErrorTypeValidation = "Validation"
	// ErrorTypeRateLimitTimeout marks a caller timeout elapsing while waiting
	// for admission or during backoff.
	ErrorTypeRateLimitTimeout = "RateLimitTimeout"
	// ErrorTypeNonce marks an unknown, expired or already-consumed nonce on
	// the account-linking completion path.
	ErrorTypeNonce = "Nonce"
	// ErrorTypeCircuitOpen marks requests refused by an open circuit breaker.
	ErrorTypeCircuitOpen = "CircuitOpen"
)

// Sentinel errors for nonce consumption and circuit state.
var (
	// ErrNonceUnknown is returned when a nonce was never issued or already swept.
	ErrNonceUnknown = errors.New("discourse: unknown nonce")

	// ErrNonceConsumed is returned on a second consumption of the same nonce.
	ErrNonceConsumed = errors.New("discourse: nonce already consumed")

	// ErrNonceExpired is returned when a nonce is consumed past its TTL.
	ErrNonceExpired = errors.New("discourse: nonce expired")

	// ErrCircuitOpen is returned when the circuit breaker refuses a request.
	ErrCircuitOpen = errors.New("discourse: circuit open")
)

// ClientError is the typed error surfaced by the dispatcher. It carries enough
// context (status code, path, attempt count) for callers to decide on
// user-facing messaging.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	Path       string
	StatusCode int
	// Snippet holds a bounded prefix of the response body for diagnostics.
	Snippet    string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry. Returns true for network errors, 5xx responses and
// rate limiting (429); false for other 4xx and validation errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeTransient, ErrorTypeCircuitOpen, ErrorTypeRateLimitTimeout:
			return true
		case ErrorTypeClient:
			return clientErr.StatusCode == 429
		default:
			return false
		}
	}

	return false
}
