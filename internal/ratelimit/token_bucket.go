// Package ratelimit caps how fast a tenant can open new upload slots. The
// bucket state lives in Redis so every API replica draws from the same
// budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int64
}

// TokenBucket refills lazily inside a Lua script, so one round trip both
// settles the elapsed refill and consumes the token.
type TokenBucket struct {
	client    *redis.Client
	capacity  int
	refillPer float64 // tokens per second
	idleTTL   time.Duration
}

// NewTokenBucket builds a limiter with the given burst capacity and refill
// rate. Buckets idle longer than idleTTL are dropped from Redis.
func NewTokenBucket(client *redis.Client, capacity int, refillPerSecond float64, idleTTL time.Duration) *TokenBucket {
	return &TokenBucket{
		client:    client,
		capacity:  capacity,
		refillPer: refillPerSecond,
		idleTTL:   idleTTL,
	}
}

// Allow consumes one token from the tenant's bucket.
func (b *TokenBucket) Allow(ctx context.Context, tenant string) (Decision, error) {
	vals, err := takeScript.Run(ctx, b.client, []string{"rl:" + tenant},
		b.capacity, b.refillPer, time.Now().UnixMilli(), b.idleTTL.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 2 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(vals))
	}
	return Decision{Allowed: vals[0] == 1, Remaining: vals[1]}, nil
}

var takeScript = redis.NewScript(`
local bucket = KEYS[1]
local cap = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local idle_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', bucket, 'tokens', 'stamp')
local tokens = tonumber(state[1]) or cap
local stamp = tonumber(state[2]) or now_ms

local elapsed = math.max(0, now_ms - stamp)
tokens = math.min(cap, tokens + elapsed / 1000 * rate)

local ok = 0
if tokens >= 1 then
  ok = 1
  tokens = tokens - 1
end

redis.call('HMSET', bucket, 'tokens', tokens, 'stamp', now_ms)
if idle_ms > 0 then
  redis.call('PEXPIRE', bucket, idle_ms)
end
return {ok, math.floor(tokens)}
`)
