package discourse

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/neargov/discourse-plugin-sub002/internal/backoff"
)

// failureClass buckets an attempt outcome for retry policy purposes.
// Classification is purely by status code; a response with no body still
// classifies the same way.
type failureClass int

const (
	classSuccess failureClass = iota
	classRetryable
	classAuth
	classClient
)

func classifyStatus(status int) failureClass {
	switch {
	case status >= 200 && status < 300:
		return classSuccess
	case status == http.StatusTooManyRequests || status >= 500:
		return classRetryable
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return classAuth
	default:
		return classClient
	}
}

// parseRetryAfter parses a Retry-After header in delay-seconds or HTTP-date
// form, clipped to max. Zero or unparsable values return 0 so the caller
// degrades to computed backoff instead of stalling or failing.
func parseRetryAfter(value string, max time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		delay := time.Duration(seconds) * time.Second
		if delay > max {
			delay = max
		}
		return delay
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay <= 0 {
			return 0
		}
		if delay > max {
			delay = max
		}
		return delay
	}

	return 0
}

// maxSnippetLen bounds the response prefix carried in typed errors.
const maxSnippetLen = 256

// maxBodyLen bounds how much of an upstream response is read into memory.
const maxBodyLen = 10 << 20

func snippet(body []byte) string {
	if len(body) > maxSnippetLen {
		body = body[:maxSnippetLen]
	}
	return string(body)
}

// doWithRetry executes the HTTP call as an explicit loop over a bounded
// attempt counter with one suspension point per iteration. build constructs a
// fresh request per attempt so bodies replay safely. It returns the final
// response with its fully-read body, or a typed terminal error. Exactly one
// RequestLogRecord is emitted per attempt.
func (c *Client) doWithRetry(ctx context.Context, method, path string, build func() (*http.Request, error), requestID string) (*http.Response, []byte, error) {
	start := time.Now()
	var strategy backoff.Strategy = backoff.Exponential{}

	for attempt := 0; ; attempt++ {
		if c.breaker != nil && !c.breaker.Allow() {
			c.metrics.RecordCircuitBreakerState(c.breaker.State())
			c.emitRecord(method, path, attempt, OutcomeFailure, 0, 0)
			return nil, nil, c.newError(ErrorTypeCircuitOpen, "circuit breaker is open", ErrCircuitOpen, requestID, method, path, 0, "", attempt, time.Since(start))
		}

		req, err := build()
		if err != nil {
			return nil, nil, c.newError(ErrorTypeValidation, "building request failed", err, requestID, method, path, 0, "", attempt, time.Since(start))
		}
		req = req.WithContext(ctx)

		attemptStart := time.Now()
		resp, err := c.httpClient.Do(req)
		attemptDuration := time.Since(attemptStart)

		var body []byte
		status := 0
		class := classRetryable
		if err == nil {
			status = resp.StatusCode
			class = classifyStatus(status)
			body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyLen))
			_ = resp.Body.Close()
			if err != nil {
				// A torn body mid-read is a network-level failure.
				class = classRetryable
			}
		}

		if c.breaker != nil {
			if err != nil || status >= 500 {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
			c.metrics.RecordCircuitBreakerState(c.breaker.State())
		}

		if class == classSuccess && err == nil {
			c.emitRecord(method, path, attempt, OutcomeSuccess, status, attemptDuration)
			return resp, body, nil
		}

		retryable := class == classRetryable
		final := !retryable || attempt >= c.maxRetries

		if final {
			c.emitRecord(method, path, attempt, OutcomeFailure, status, attemptDuration)
			return nil, nil, c.terminalError(class, err, requestID, method, path, status, snippet(body), attempt, time.Since(start))
		}
		c.emitRecord(method, path, attempt, OutcomeRetry, status, attemptDuration)

		delay := time.Duration(0)
		if resp != nil {
			delay = parseRetryAfter(resp.Header.Get("Retry-After"), c.maxRetryAfter)
		}
		if delay == 0 {
			delay = strategy.Delay(attempt, c.initialBackoff, c.maxBackoff, c.backoffMultiplier, c.jitter)
		}

		c.metrics.RecordRetry(method, path)
		if c.debugEnabled() && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("scheduling retry", "requestID", requestID, "attempt", attempt+1, "maxRetries", c.maxRetries, "backoff", delay, "path", path)
		}

		if err := sleepCtx(ctx, delay); err != nil {
			// A cancelled call is not retried further.
			return nil, nil, c.newError(ErrorTypeRateLimitTimeout, "cancelled during backoff", err, requestID, method, path, status, "", attempt, time.Since(start))
		}
	}
}

func (c *Client) terminalError(class failureClass, cause error, requestID, method, path string, status int, bodySnippet string, attempt int, duration time.Duration) error {
	switch class {
	case classAuth:
		return c.newError(ErrorTypeAuth, "upstream rejected credentials", cause, requestID, method, path, status, bodySnippet, attempt, duration)
	case classClient:
		return c.newError(ErrorTypeClient, "upstream rejected request", cause, requestID, method, path, status, bodySnippet, attempt, duration)
	default:
		return c.newError(ErrorTypeTransient, "retry budget exhausted", cause, requestID, method, path, status, bodySnippet, attempt, duration)
	}
}

// sleepCtx suspends for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
