package kernel

import (
	"context"
	"sync"
	"time"
)

// DecisionCache stores computed decisions keyed by context fingerprint so a
// retried evaluation reuses the original decision instead of re-running the
// guards. First write wins: Put never overwrites an existing entry.
type DecisionCache interface {
	Get(ctx context.Context, key string) (Decision, bool, error)
	Put(ctx context.Context, key string, d Decision, ttl time.Duration) error
}

// MemoryDecisionCache is the in-process cache used by single-node
// deployments and tests.
type MemoryDecisionCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

type memoryEntry struct {
	decision Decision
	expires  time.Time
}

// NewMemoryDecisionCache creates an empty cache.
func NewMemoryDecisionCache() *MemoryDecisionCache {
	return &MemoryDecisionCache{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (c *MemoryDecisionCache) WithClock(clock func() time.Time) *MemoryDecisionCache {
	c.clock = clock
	return c
}

// Get returns the cached decision for key, if present and unexpired.
func (c *MemoryDecisionCache) Get(_ context.Context, key string) (Decision, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Decision{}, false, nil
	}
	if !e.expires.IsZero() && c.clock().After(e.expires) {
		delete(c.entries, key)
		return Decision{}, false, nil
	}
	return e.decision, true, nil
}

// Put stores d under key unless a live entry already exists. ttl <= 0 means
// no expiry.
func (c *MemoryDecisionCache) Put(_ context.Context, key string, d Decision, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		if e.expires.IsZero() || c.clock().Before(e.expires) {
			return nil
		}
	}

	var expires time.Time
	if ttl > 0 {
		expires = c.clock().Add(ttl)
	}
	c.entries[key] = memoryEntry{decision: d, expires: expires}
	return nil
}
