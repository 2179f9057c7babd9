// Package singleflight coalesces concurrent identical cacheable reads so only
// one upstream call is in flight per key.
package singleflight

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Group manages a set of in-flight calls keyed by string.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

type call struct {
	done chan struct{}
	val  []byte
	err  error
}

// New creates an empty Group.
func New() *Group {
	return &Group{m: make(map[string]*call)}
}

// successRetention keeps a finished successful call visible briefly so late
// duplicates still coalesce. Failed calls are dropped immediately so fresh
// callers dispatch upstream instead of inheriting a stale error.
const successRetention = 100 * time.Millisecond

// Do executes fn, ensuring only one execution is in flight for key at a time.
// Duplicate callers wait for the original and receive the same results. A
// waiter whose ctx expires stops waiting and returns ctx.Err(); the in-flight
// call keeps running for the remaining callers. When the owning call fails
// with its own context cancellation, waiters with live contexts re-dispatch
// rather than inherit the foreign cancellation.
func (g *Group) Do(ctx context.Context, key string, fn func() ([]byte, error)) ([]byte, error) {
	for {
		g.mu.Lock()
		if c, ok := g.m[key]; ok {
			g.mu.Unlock()
			select {
			case <-c.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if ownerCancelled(c.err) && ctx.Err() == nil {
				continue
			}
			return c.val, c.err
		}

		c := &call{done: make(chan struct{})}
		g.m[key] = c
		g.mu.Unlock()

		c.val, c.err = fn()
		close(c.done)

		g.mu.Lock()
		if c.err != nil {
			delete(g.m, key)
		} else {
			time.AfterFunc(successRetention, func() {
				g.mu.Lock()
				if g.m[key] == c {
					delete(g.m, key)
				}
				g.mu.Unlock()
			})
		}
		g.mu.Unlock()

		return c.val, c.err
	}
}

func ownerCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
