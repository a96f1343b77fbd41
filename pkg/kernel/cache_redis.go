package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDecisionCache shares decision idempotency across replicas. SET NX
// preserves first-write-wins so two racing evaluators converge on the same
// recorded decision.
type RedisDecisionCache struct {
	client *redis.Client
	prefix string
}

// NewRedisDecisionCache connects a cache to a Redis instance.
func NewRedisDecisionCache(addr, password string, db int) *RedisDecisionCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisDecisionCache{client: rdb, prefix: "decision:"}
}

// Get fetches a cached decision by fingerprint.
func (c *RedisDecisionCache) Get(ctx context.Context, key string) (Decision, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Decision{}, false, nil
	}
	if err != nil {
		return Decision{}, false, fmt.Errorf("redis decision get: %w", err)
	}

	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return Decision{}, false, fmt.Errorf("redis decision decode: %w", err)
	}
	return d, true, nil
}

// Put stores a decision unless one is already present for the fingerprint.
func (c *RedisDecisionCache) Put(ctx context.Context, key string, d Decision, ttl time.Duration) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redis decision encode: %w", err)
	}
	if err := c.client.SetNX(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis decision put: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *RedisDecisionCache) Close() error {
	return c.client.Close()
}
