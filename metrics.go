package discourse

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the dispatcher lifecycle
// and reliability layers. All record methods are nil-receiver safe so the
// client can run without metrics. Safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	// retryAttempts increments once per retry actually taken, not per
	// initial attempt.
	retryAttempts *prometheus.CounterVec

	rateLimitWait prometheus.Histogram
	bucketCount   prometheus.Gauge

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   prometheus.Gauge

	noncesIssued   prometheus.Counter
	noncesConsumed prometheus.Counter
	noncesRejected *prometheus.CounterVec

	circuitBreakerState prometheus.Gauge

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "discourse_client_requests_total",
				Help: "Total number of upstream requests by final outcome",
			},
			[]string{"method", "status_code", "path"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discourse_client_request_duration_seconds",
				Help:    "Duration of logical upstream calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "discourse_client_requests_in_flight",
				Help: "Number of upstream requests currently in flight",
			},
			[]string{"method"},
		),
		retryAttempts: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "discourse_client_retry_attempts_total",
				Help: "Total number of retries actually taken",
			},
			[]string{"method", "path"},
		),
		rateLimitWait: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "discourse_client_rate_limit_wait_seconds",
				Help:    "Time spent waiting for rate-limit admission",
				Buckets: prometheus.DefBuckets,
			},
		),
		bucketCount: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "discourse_client_rate_limit_buckets",
				Help: "Number of live rate-limit buckets",
			},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "discourse_client_cache_hits_total",
				Help: "Total number of read-cache hits",
			},
			[]string{"method", "path"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "discourse_client_cache_misses_total",
				Help: "Total number of read-cache misses",
			},
			[]string{"method", "path"},
		),
		cacheSize: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "discourse_client_cache_size",
				Help: "Current number of entries in the read cache",
			},
		),
		noncesIssued: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "discourse_client_nonces_issued_total",
				Help: "Total number of linking nonces issued",
			},
		),
		noncesConsumed: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "discourse_client_nonces_consumed_total",
				Help: "Total number of linking nonces consumed successfully",
			},
		),
		noncesRejected: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "discourse_client_nonces_rejected_total",
				Help: "Total number of nonce consumptions rejected",
			},
			[]string{"reason"},
		),
		circuitBreakerState: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "discourse_client_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "discourse_client_errors_total",
				Help: "Total number of terminal errors by type",
			},
			[]string{"type", "method", "path"},
		),
	}
}

// RecordRequest records the final outcome and duration of a logical call.
func (mc *MetricsCollector) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), path).Inc()
	mc.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method).Dec()
}

// RecordRetry increments the retry counter for one retry actually taken.
func (mc *MetricsCollector) RecordRetry(method, path string) {
	if mc == nil {
		return
	}
	mc.retryAttempts.WithLabelValues(method, path).Inc()
}

// RecordRateLimitWait observes time spent waiting for admission.
func (mc *MetricsCollector) RecordRateLimitWait(d time.Duration) {
	if mc == nil {
		return
	}
	mc.rateLimitWait.Observe(d.Seconds())
}

// RecordBucketCount sets the live-bucket gauge.
func (mc *MetricsCollector) RecordBucketCount(n int) {
	if mc == nil {
		return
	}
	mc.bucketCount.Set(float64(n))
}

// RecordCacheHit increments the cache-hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, path string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(method, path).Inc()
}

// RecordCacheMiss increments the cache-miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, path string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(method, path).Inc()
}

// RecordCacheSize sets the cache-size gauge.
func (mc *MetricsCollector) RecordCacheSize(n int) {
	if mc == nil {
		return
	}
	mc.cacheSize.Set(float64(n))
}

// RecordNonceIssued increments the issued-nonce counter.
func (mc *MetricsCollector) RecordNonceIssued() {
	if mc == nil {
		return
	}
	mc.noncesIssued.Inc()
}

// RecordNonceConsumed increments the consumed-nonce counter.
func (mc *MetricsCollector) RecordNonceConsumed() {
	if mc == nil {
		return
	}
	mc.noncesConsumed.Inc()
}

// RecordNonceRejected increments the rejected-nonce counter for a reason
// (unknown, consumed, expired).
func (mc *MetricsCollector) RecordNonceRejected(reason string) {
	if mc == nil {
		return
	}
	mc.noncesRejected.WithLabelValues(reason).Inc()
}

// RecordCircuitBreakerState sets the breaker-state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.Set(float64(state))
}

// RecordError increments the terminal-error counter.
func (mc *MetricsCollector) RecordError(errorType, method, path string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType, method, path).Inc()
}
