package discourse

import (
	"sync/atomic"
	"time"
)

// CircuitBreaker keeps a failing upstream from being hammered: after
// FailureThreshold consecutive failures it opens and refuses requests until
// RecoveryTimeout has passed, then lets probes through half-open until
// SuccessThreshold successes close it again. Lock-free; safe for concurrent use.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	state       int64
	failures    int64
	successes   int64
	lastFailure int64
}

// NewCircuitBreaker creates a breaker, filling zero config fields with defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	return &CircuitBreaker{
		config: config,
		state:  int64(StateClosed),
	}
}

// Allow reports whether a request may proceed, transitioning open → half-open
// once the recovery timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		last := atomic.LoadInt64(&cb.lastFailure)
		if time.Now().UnixNano()-last >= int64(cb.config.RecoveryTimeout) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				atomic.StoreInt64(&cb.successes, 0)
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RecordFailure notes a failed attempt, opening the circuit when the failure
// threshold is reached or a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.lastFailure, time.Now().UnixNano())

	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		if atomic.AddInt64(&cb.failures, 1) >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateHalfOpen:
		atomic.StoreInt64(&cb.state, int64(StateOpen))
		atomic.StoreInt64(&cb.successes, 0)
	}
}

// RecordSuccess notes a successful attempt, closing the circuit after enough
// half-open probes succeed.
func (cb *CircuitBreaker) RecordSuccess() {
	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		atomic.StoreInt64(&cb.failures, 0)
	case StateHalfOpen:
		if atomic.AddInt64(&cb.successes, 1) >= int64(cb.config.SuccessThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateClosed))
			atomic.StoreInt64(&cb.failures, 0)
			atomic.StoreInt64(&cb.successes, 0)
		}
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}
