package discourse

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gates outbound requests against a requests-per-second budget.
// Under StrategyGlobal a single bucket is shared regardless of key; under
// StrategyPerKey each key gets its own lazily-created bucket. Buckets idle
// longer than idleTTL are evicted, and the total live-bucket count is bounded
// with least-recently-used eviction. Acquire never errors on its own; it only
// delays, and aborts early when the caller's context does.
type RateLimiter struct {
	mu         sync.Mutex
	rps        float64
	burst      int
	strategy   RateLimitStrategy
	idleTTL    time.Duration
	maxBuckets int
	buckets    map[string]*rateBucket
	now        func() time.Time
}

type rateBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

const globalBucketKey = "__global__"

// NewRateLimiter creates a limiter refilling rps permits per second up to
// burst per bucket. A fresh bucket starts with a full permit count.
func NewRateLimiter(rps float64, burst int, strategy RateLimitStrategy, idleTTL time.Duration, maxBuckets int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if maxBuckets < 1 {
		maxBuckets = 1
	}
	return &RateLimiter{
		rps:        rps,
		burst:      burst,
		strategy:   strategy,
		idleTTL:    idleTTL,
		maxBuckets: maxBuckets,
		buckets:    make(map[string]*rateBucket),
		now:        time.Now,
	}
}

// Acquire suspends the caller until one unit of capacity is available for key,
// or until ctx is cancelled. Admission is granted in request order per bucket.
func (rl *RateLimiter) Acquire(ctx context.Context, key string) error {
	return rl.bucketFor(key).Wait(ctx)
}

// bucketFor returns the limiter for key, creating it if needed. Idle buckets
// are pruned on every lookup; LRU eviction keeps the live count bounded.
func (rl *RateLimiter) bucketFor(key string) *rate.Limiter {
	if rl.strategy != StrategyPerKey {
		key = globalBucketKey
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evictIdleLocked(now)

	b, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= rl.maxBuckets {
			rl.evictOldestLocked()
		}
		b = &rateBucket{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst)}
		rl.buckets[key] = b
	}
	b.lastAccess = now
	return b.limiter
}

func (rl *RateLimiter) evictIdleLocked(now time.Time) {
	if rl.idleTTL <= 0 {
		return
	}
	for key, b := range rl.buckets {
		if now.Sub(b.lastAccess) > rl.idleTTL {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, b := range rl.buckets {
		if first || b.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = b.lastAccess
			first = false
		}
	}
	if !first {
		delete(rl.buckets, oldestKey)
	}
}

// BucketCount returns the number of live buckets, for metrics and tests.
func (rl *RateLimiter) BucketCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
