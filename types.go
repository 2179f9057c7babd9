package discourse

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// RateLimitStrategy selects how outbound admission control is partitioned.
type RateLimitStrategy string

const (
	// StrategyGlobal shares a single token bucket across all requests.
	StrategyGlobal RateLimitStrategy = "global"
	// StrategyPerKey keeps one bucket per rate key (default: request path).
	StrategyPerKey RateLimitStrategy = "per-key"
)

// FetchOptions controls a single dispatcher call.
type FetchOptions struct {
	// Method defaults to GET when empty.
	Method string
	// Body is JSON-encoded when non-nil. Ignored if RawBody is set.
	Body any
	// RawBody is sent verbatim (e.g. multipart uploads). It is buffered once
	// so attempts can be replayed safely.
	RawBody io.Reader
	// ContentType overrides the default application/json.
	ContentType string
	// AsUser sets the Api-Username header for admin impersonation.
	AsUser string
	// UserAPIKey replaces the admin key with a User-Api-Key header.
	UserAPIKey string
	// Cacheable opts the response into the read cache. Callers decide
	// cacheability; the cache itself is policy-agnostic.
	Cacheable bool
	// RateKey selects the admission partition under the per-key strategy.
	// Defaults to the request path.
	RateKey string
}

// Outcome classifies a single request attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"
	OutcomeFailure Outcome = "failure"
)

// RequestLogRecord describes one attempt of one logical call. A call that
// retries twice produces three records.
type RequestLogRecord struct {
	Method     string
	Path       string
	Attempt    int
	Outcome    Outcome
	StatusCode int
	Duration   time.Duration
}

// RecordSink receives one RequestLogRecord per attempt. The host application
// decides where records go; the client never prints them directly.
type RecordSink func(RequestLogRecord)

// Option represents a configuration option applied at construction.
type Option func(*Client)

// DebugConfig controls optional debug logging per concern.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCache     bool
	LogRateLimit bool
	LogCircuit   bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a DebugConfig with all concerns enabled and
// UUID-based request IDs.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogCache:     true,
		LogRateLimit: true,
		LogCircuit:   true,
		RequestIDGen: uuid.NewString,
	}
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// CircuitState represents the state of the circuit breaker.
type CircuitState int64

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)
