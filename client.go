package discourse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/neargov/discourse-plugin-sub002/internal/singleflight"
)

// Client is the resilient request dispatcher every resource method uses to
// talk to the forum service. It composes rate limiting, retries with backoff,
// read caching and nonce bookkeeping around the standard net/http Client.
// All shared mutable state is owned by the instance, so independent Clients
// never interfere. Safe for concurrent use.
type Client struct {
	httpClient *http.Client

	baseURL       string
	apiKey        string
	apiUsername   string
	walletAuthURL string

	timeout           time.Duration
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	maxRetryAfter     time.Duration

	rps           float64
	burst         int
	strategy      RateLimitStrategy
	bucketIdleTTL time.Duration
	maxBuckets    int

	cacheMaxEntries int
	cacheTTL        time.Duration

	nonceTTL           time.Duration
	nonceSweepInterval time.Duration

	limiter *RateLimiter
	cache   *ResponseCache
	nonces  *NonceStore
	flight  *singleflight.Group
	breaker *CircuitBreaker

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig
	record  RecordSink

	validationError error
}

// New constructs a Client for the forum at baseURL using the provided
// functional options. Every knob has an explicit default. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(baseURL string, options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:       strings.TrimRight(baseURL, "/"),
		walletAuthURL: "https://app.mynearwallet.com/login",

		timeout:           30 * time.Second,
		maxRetries:        3,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0.1,
		maxRetryAfter:     time.Hour,

		rps:           10,
		burst:         1,
		strategy:      StrategyGlobal,
		bucketIdleTTL: 5 * time.Minute,
		maxBuckets:    256,

		cacheMaxEntries: 512,
		cacheTTL:        time.Minute,

		nonceTTL:           10 * time.Minute,
		nonceSweepInterval: time.Minute,

		breaker: NewCircuitBreaker(CircuitBreakerConfig{}),
		debug:   DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	client.limiter = NewRateLimiter(client.rps, client.burst, client.strategy, client.bucketIdleTTL, client.maxBuckets)
	client.cache = NewResponseCache(client.cacheMaxEntries, client.cacheTTL)
	client.nonces = NewNonceStore(client.nonceTTL, client.nonceSweepInterval)
	client.flight = singleflight.New()

	return client
}

// Close stops background work (the nonce sweep). The Client must not be used
// afterwards for linking flows; plain fetches keep working.
func (c *Client) Close() {
	if c.nonces != nil {
		c.nonces.Close()
	}
}

// Fetch performs one logical call against the forum service: cache lookup,
// rate-limit admission, the retried HTTP exchange, decode, and cache store.
// An empty response body yields nil, not an error. Errors are always typed
// *ClientError values.
func (c *Client) Fetch(ctx context.Context, path string, opts FetchOptions) (gojson.RawMessage, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var requestID string
	if c.debugEnabled() && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debugEnabled() && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("starting request", "requestID", requestID, "method", method, "path", path)
	}

	start := time.Now()
	c.metrics.RecordRequestStart(method)
	defer c.metrics.RecordRequestEnd(method)

	cacheKey := ""
	if opts.Cacheable {
		cacheKey = c.cacheKeyFor(method, path, opts)
		if entry, ok := c.cache.Get(cacheKey); ok {
			// Served from cache: only the hit counter moves, the upstream
			// request counters stay untouched.
			c.metrics.RecordCacheHit(method, path)
			if c.debugEnabled() && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("cache hit", "requestID", requestID, "cacheKey", cacheKey)
			}
			return cloneRaw(entry.Body), nil
		}
		c.metrics.RecordCacheMiss(method, path)
	}

	dispatch := func() ([]byte, error) {
		return c.dispatch(ctx, method, path, opts, cacheKey, requestID, start)
	}

	var body []byte
	var err error
	if opts.Cacheable {
		// Concurrent identical reads share one upstream call. A waiter whose
		// context expires before the shared call finishes aborts on its own
		// deadline and surfaces a typed timeout.
		body, err = c.flight.Do(ctx, cacheKey, dispatch)
		var clientErr *ClientError
		if err != nil && !errors.As(err, &clientErr) {
			err = c.newError(ErrorTypeRateLimitTimeout, "timed out waiting for coalesced request", err, requestID, method, path, 0, "", 0, time.Since(start))
			c.finishFailure(err, method, path, start)
		}
	} else {
		body, err = dispatch()
	}
	if err != nil {
		return nil, err
	}
	return cloneRaw(body), nil
}

// dispatch runs admission, the retried HTTP exchange and cache store for one
// logical call. It returns the raw response body (nil for empty bodies).
func (c *Client) dispatch(ctx context.Context, method, path string, opts FetchOptions, cacheKey, requestID string, start time.Time) ([]byte, error) {
	rateKey := opts.RateKey
	if rateKey == "" {
		rateKey = path
	}

	waitStart := time.Now()
	if err := c.limiter.Acquire(ctx, rateKey); err != nil {
		err = c.newError(ErrorTypeRateLimitTimeout, "timed out waiting for rate-limit admission", err, requestID, method, path, 0, "", 0, time.Since(start))
		c.finishFailure(err, method, path, start)
		return nil, err
	}
	c.metrics.RecordRateLimitWait(time.Since(waitStart))
	c.metrics.RecordBucketCount(c.limiter.BucketCount())
	if c.debugEnabled() && c.debug.LogRateLimit && c.logger != nil {
		c.logger.Debug("admission granted", "requestID", requestID, "rateKey", rateKey, "waited", time.Since(waitStart))
	}

	build, err := c.requestBuilder(method, path, opts)
	if err != nil {
		err = c.newError(ErrorTypeValidation, "encoding request body failed", err, requestID, method, path, 0, "", 0, time.Since(start))
		c.finishFailure(err, method, path, start)
		return nil, err
	}

	resp, body, err := c.doWithRetry(ctx, method, path, build, requestID)
	if err != nil {
		c.finishFailure(err, method, path, start)
		return nil, err
	}

	if len(body) == 0 {
		body = nil
	} else if !gojson.Valid(body) {
		err = c.newError(ErrorTypeValidation, "response body is not valid JSON", nil, requestID, method, path, resp.StatusCode, snippet(body), 0, time.Since(start))
		c.finishFailure(err, method, path, start)
		return nil, err
	}

	if opts.Cacheable && body != nil {
		c.cache.Set(cacheKey, body, resp.StatusCode)
		c.metrics.RecordCacheSize(c.cache.Len())
		if c.debugEnabled() && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("response cached", "requestID", requestID, "cacheKey", cacheKey, "ttl", c.cacheTTL)
		}
	}

	c.metrics.RecordRequest(method, path, resp.StatusCode, time.Since(start))
	return body, nil
}

// finishFailure records terminal-failure metrics. The failure log record was
// already emitted by the attempt that produced it.
func (c *Client) finishFailure(err error, method, path string, start time.Time) {
	var clientErr *ClientError
	status := 0
	errType := ErrorTypeTransient
	if errors.As(err, &clientErr) {
		status = clientErr.StatusCode
		errType = clientErr.Type
	}
	c.metrics.RecordError(errType, method, path)
	c.metrics.RecordRequest(method, path, status, time.Since(start))
	if c.logger != nil {
		c.logger.Error("request failed", "method", method, "path", path, "error", err.Error())
	}
}

// requestBuilder buffers the body once and returns a factory producing a
// fresh, replayable request per attempt.
func (c *Client) requestBuilder(method, path string, opts FetchOptions) (func() (*http.Request, error), error) {
	var payload []byte
	contentType := opts.ContentType

	switch {
	case opts.RawBody != nil:
		buf, err := io.ReadAll(opts.RawBody)
		if err != nil {
			return nil, err
		}
		payload = buf
	case opts.Body != nil:
		buf, err := gojson.Marshal(opts.Body)
		if err != nil {
			return nil, err
		}
		payload = buf
		if contentType == "" {
			contentType = "application/json"
		}
	}

	url := c.baseURL + path
	return func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, url, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		c.setAuthHeaders(req, opts)
		return req, nil
	}, nil
}

// setAuthHeaders applies the admin key or a per-request user key override.
func (c *Client) setAuthHeaders(req *http.Request, opts FetchOptions) {
	if opts.UserAPIKey != "" {
		req.Header.Set("User-Api-Key", opts.UserAPIKey)
		return
	}
	if c.apiKey != "" {
		req.Header.Set("Api-Key", c.apiKey)
		username := opts.AsUser
		if username == "" {
			username = c.apiUsername
		}
		if username != "" {
			req.Header.Set("Api-Username", username)
		}
	}
}

// cacheKeyFor normalizes (method, path, acting identity) into a cache key.
func (c *Client) cacheKeyFor(method, path string, opts FetchOptions) string {
	actor := c.apiUsername
	if opts.AsUser != "" {
		actor = opts.AsUser
	}
	if opts.UserAPIKey != "" {
		actor = "key:" + opts.UserAPIKey
	}
	return method + " " + path + "\x00" + actor
}

func (c *Client) emitRecord(method, path string, attempt int, outcome Outcome, status int, duration time.Duration) {
	if c.record == nil {
		return
	}
	c.record(RequestLogRecord{
		Method:     method,
		Path:       path,
		Attempt:    attempt,
		Outcome:    outcome,
		StatusCode: status,
		Duration:   duration,
	})
}

func (c *Client) newError(errType, message string, cause error, requestID, method, path string, status int, bodySnippet string, attempt int, duration time.Duration) *ClientError {
	return &ClientError{
		Type:       errType,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     method,
		Path:       path,
		StatusCode: status,
		Snippet:    bodySnippet,
		Attempt:    attempt,
		MaxRetries: c.maxRetries,
		Timestamp:  time.Now(),
		Duration:   duration,
	}
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled
}

func cloneRaw(body []byte) gojson.RawMessage {
	if body == nil {
		return nil
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out
}

// FetchAs fetches path and decodes the response into T. An empty body yields
// the zero value; a body that fails decoding is a validation failure and is
// never retried.
func FetchAs[T any](ctx context.Context, c *Client, path string, opts FetchOptions) (T, error) {
	var out T
	raw, err := c.Fetch(ctx, path, opts)
	if err != nil {
		return out, err
	}
	if raw == nil {
		return out, nil
	}
	if err := gojson.Unmarshal(raw, &out); err != nil {
		return out, &ClientError{
			Type:    ErrorTypeValidation,
			Message: "decoding response failed",
			Cause:   err,
			Path:    path,
		}
	}
	return out, nil
}
