package discourse

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// NonceStore is a time-bounded, single-use token registry binding the two
// steps of the wallet authorization handshake. A background sweep purges
// expired entries independent of lookups so abandoned attempts cannot grow
// memory without bound. Safe for concurrent use.
type NonceStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*nonceEntry
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type nonceEntry struct {
	createdAt time.Time
	consumed  bool
}

// NewNonceStore creates a store whose tokens live for ttl and starts the
// sweep loop on sweepInterval. Call Close to stop the sweep.
func NewNonceStore(ttl, sweepInterval time.Duration) *NonceStore {
	ns := &NonceStore{
		ttl:     ttl,
		entries: make(map[string]*nonceEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go ns.sweepLoop(sweepInterval)
	}
	return ns
}

// Issue generates a cryptographically unpredictable token and registers it.
func (ns *NonceStore) Issue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	ns.mu.Lock()
	ns.entries[token] = &nonceEntry{createdAt: ns.now()}
	ns.mu.Unlock()
	return token, nil
}

// Consume marks token consumed and succeeds exactly once. It fails with
// ErrNonceUnknown for tokens never issued (or already swept), ErrNonceConsumed
// on replay and ErrNonceExpired past the TTL even on first use.
func (ns *NonceStore) Consume(token string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	entry, ok := ns.entries[token]
	if !ok {
		return ErrNonceUnknown
	}
	if entry.consumed {
		return ErrNonceConsumed
	}
	if ns.now().Sub(entry.createdAt) >= ns.ttl {
		delete(ns.entries, token)
		return ErrNonceExpired
	}
	entry.consumed = true
	return nil
}

// Len returns the number of registered tokens, consumed or not.
func (ns *NonceStore) Len() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return len(ns.entries)
}

// Close stops the background sweep. Idempotent.
func (ns *NonceStore) Close() {
	ns.stopOnce.Do(func() { close(ns.stop) })
}

func (ns *NonceStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ns.sweep()
		case <-ns.stop:
			return
		}
	}
}

// sweep purges entries past their TTL whether or not they were consumed.
func (ns *NonceStore) sweep() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	now := ns.now()
	for token, entry := range ns.entries {
		if now.Sub(entry.createdAt) >= ns.ttl {
			delete(ns.entries, token)
		}
	}
}
