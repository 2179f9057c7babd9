package discourse

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		if c.timeout != 0 {
			c.httpClient.Timeout = c.timeout
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithAPIKey sets the admin API key and the default acting username.
func WithAPIKey(key, username string) Option {
	return func(c *Client) {
		c.apiKey = key
		c.apiUsername = username
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the backoff multiplier.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithMaxRetryAfter caps how long a server-supplied Retry-After hint is honored.
func WithMaxRetryAfter(d time.Duration) Option {
	return func(c *Client) {
		c.maxRetryAfter = d
	}
}

// WithRateLimit sets the requests-per-second budget and per-bucket capacity.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rps = rps
		c.burst = burst
	}
}

// WithRateLimitStrategy selects global or per-key admission partitioning.
func WithRateLimitStrategy(strategy RateLimitStrategy) Option {
	return func(c *Client) {
		c.strategy = strategy
	}
}

// WithBucketIdleTTL sets how long an unused bucket survives before eviction.
func WithBucketIdleTTL(d time.Duration) Option {
	return func(c *Client) {
		c.bucketIdleTTL = d
	}
}

// WithMaxBuckets bounds the number of concurrently tracked buckets.
func WithMaxBuckets(n int) Option {
	return func(c *Client) {
		c.maxBuckets = n
	}
}

// WithCache sets the read-cache capacity and entry TTL.
func WithCache(maxEntries int, ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheMaxEntries = maxEntries
		c.cacheTTL = ttl
	}
}

// WithNonceTTL sets the linking-nonce lifetime.
func WithNonceTTL(d time.Duration) Option {
	return func(c *Client) {
		c.nonceTTL = d
	}
}

// WithNonceSweepInterval sets how often expired nonces are purged.
func WithNonceSweepInterval(d time.Duration) Option {
	return func(c *Client) {
		c.nonceSweepInterval = d
	}
}

// WithWalletAuthURL sets the NEAR wallet endpoint linking challenges point at.
func WithWalletAuthURL(u string) Option {
	return func(c *Client) {
		c.walletAuthURL = u
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breaker = NewCircuitBreaker(config)
	}
}

// WithoutCircuitBreaker disables the circuit breaker layer.
func WithoutCircuitBreaker() Option {
	return func(c *Client) {
		c.breaker = nil
	}
}

// WithRecordSink sets the callback receiving one RequestLogRecord per attempt.
func WithRecordSink(sink RecordSink) Option {
	return func(c *Client) {
		c.record = sink
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error describing every violation found.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	if strings.TrimSpace(c.baseURL) == "" {
		problems = append(problems, "baseURL must not be empty")
	} else if u, err := url.Parse(c.baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "baseURL must be an absolute URL")
	}

	if c.maxRetries < 0 {
		problems = append(problems, "maxRetries must be non-negative")
	}
	if c.initialBackoff <= 0 {
		problems = append(problems, "initialBackoff must be positive")
	}
	if c.maxBackoff < c.initialBackoff {
		problems = append(problems, "maxBackoff must be greater than or equal to initialBackoff")
	}
	if c.backoffMultiplier <= 0 {
		problems = append(problems, "backoffMultiplier must be positive")
	}
	if c.jitter < 0 || c.jitter > 1 {
		problems = append(problems, "jitter must be between 0 and 1")
	}
	if c.maxRetryAfter <= 0 {
		problems = append(problems, "maxRetryAfter must be positive")
	}

	if c.rps <= 0 {
		problems = append(problems, "requests-per-second budget must be positive")
	}
	if c.burst < 1 {
		problems = append(problems, "burst must be at least 1")
	}
	if c.strategy != StrategyGlobal && c.strategy != StrategyPerKey {
		problems = append(problems, fmt.Sprintf("unknown rate limit strategy %q", c.strategy))
	}
	if c.bucketIdleTTL <= 0 {
		problems = append(problems, "bucketIdleTTL must be positive")
	}
	if c.maxBuckets < 1 {
		problems = append(problems, "maxBuckets must be at least 1")
	}

	if c.cacheMaxEntries < 1 {
		problems = append(problems, "cache capacity must be at least 1")
	}
	if c.cacheTTL <= 0 {
		problems = append(problems, "cacheTTL must be positive")
	}

	if c.nonceTTL <= 0 {
		problems = append(problems, "nonceTTL must be positive")
	}
	if c.nonceSweepInterval <= 0 {
		problems = append(problems, "nonceSweepInterval must be positive")
	}

	if len(problems) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
