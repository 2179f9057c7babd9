// Package discourse provides a typed client for a Discourse forum API with a
// resilient request-dispatch core and a NEAR account linking flow:
//
//   - Rate limiting (token bucket, global or per-key partitions with LRU eviction)
//   - Retries with exponential backoff + jitter, honoring Retry-After hints
//   - In-memory TTL/LRU caching of idempotent reads
//   - Single-use, time-bounded nonces for the wallet authorization handshake
//   - Circuit breaker (open / half-open / closed states)
//   - Prometheus metrics and per-attempt request records via injected sinks
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - No ambient globals: buckets, cache entries and nonces are owned by the Client
//   - The dispatcher sees only HTTP-level concerns; resource methods stay mechanical
//
// Typical usage:
//
//	client := discourse.New("https://forum.example.org",
//	    discourse.WithAPIKey("key", "system"),
//	    discourse.WithMaxRetries(3),
//	    discourse.WithRateLimit(10, 1),
//	    discourse.WithCache(512, time.Minute),
//	)
//	defer client.Close()
//	cats, err := client.ListCategories(ctx)
//
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger) plus a RecordSink to receive one record per attempt.
package discourse
