package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and drains a per-client bucket atomically so
// replicas sharing one Redis agree on the same count.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = current unix timestamp (seconds)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisRateLimiter enforces per-client limits shared across replicas.
// Single-node deployments should prefer GlobalRateLimiter; this variant
// exists for installs that run the API behind a load balancer.
type RedisRateLimiter struct {
	client *redis.Client
	rps    float64
	burst  int
	prefix string
}

// NewRedisRateLimiter connects a limiter to a Redis instance.
func NewRedisRateLimiter(addr, password string, db int, rps, burst int) *RedisRateLimiter {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRateLimiter{
		client: rdb,
		rps:    float64(rps),
		burst:  burst,
		prefix: "pawl:ratelimit:",
	}
}

// Allow consumes one token from the client's bucket.
func (rl *RedisRateLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	rate := rl.rps
	if rate <= 0 {
		rate = 1.0
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, rl.client, []string{rl.prefix + clientID}, rate, rl.burst, 1, now).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("redis limiter: unexpected script result %T", res)
	}

	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// Middleware returns a Handler that enforces the shared limit. Redis
// outages fail open: limiting protects availability, it must not become
// the outage itself.
func (rl *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, err := rl.Allow(r.Context(), clientIP(r))
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			WriteTooManyRequests(w, 5)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close releases the underlying client.
func (rl *RedisRateLimiter) Close() error {
	return rl.client.Close()
}
