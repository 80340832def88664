// Package dedup provides the in-process fast path for duplicate delivery
// suppression: an in-flight guard keyed by channel message id, and a
// cooldown map used by the chat adapter to damp rapid empty-mention pings.
//
// Neither structure is load-bearing for correctness. The durable ledger's
// unique-constraint insert is; these only save a round trip to the store
// when the same node sees the same message twice.
package dedup

import (
	"context"
	"sync"
	"time"
)

// InFlightGuard tracks message identifiers currently being processed.
type InFlightGuard interface {
	// Begin returns true if the caller acquired the identifier. A false
	// return means another in-flight invocation holds it.
	Begin(ctx context.Context, id string) (bool, error)

	// End releases the identifier.
	End(ctx context.Context, id string)
}

// LocalGuard is a single-node InFlightGuard: a mutex-protected set with
// TTL eviction so identifiers abandoned by a crashed invocation cannot
// pin the guard forever.
type LocalGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewLocalGuard creates a guard whose entries expire after ttl.
func NewLocalGuard(ttl time.Duration) *LocalGuard {
	return &LocalGuard{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (g *LocalGuard) Begin(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.evictLocked(now)

	if deadline, held := g.entries[id]; held && now.Before(deadline) {
		return false, nil
	}
	g.entries[id] = now.Add(g.ttl)
	return true, nil
}

func (g *LocalGuard) End(_ context.Context, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, id)
}

func (g *LocalGuard) evictLocked(now time.Time) {
	for id, deadline := range g.entries {
		if now.After(deadline) {
			delete(g.entries, id)
		}
	}
}

// Cooldown suppresses repeated events for the same key within a TTL
// window. Used to avoid replying to the same empty chat mention over and
// over when a client retries delivery.
type Cooldown struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewCooldown creates a cooldown map with the given window.
func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether the key is outside its cooldown window, and if so
// starts a new window.
func (c *Cooldown) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, deadline := range c.entries {
		if now.After(deadline) {
			delete(c.entries, k)
		}
	}

	if deadline, held := c.entries[key]; held && now.Before(deadline) {
		return false
	}
	c.entries[key] = now.Add(c.ttl)
	return true
}
