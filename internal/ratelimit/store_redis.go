package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript checks every bucket, then records only if all pass.
//
// KEYS[i]       = bucket key
// ARGV[1]       = now (ms)
// ARGV[2i]      = window (ms) of KEYS[i]
// ARGV[2i+1]    = max of KEYS[i]
// ARGV[#ARGV]   = unique member for this hit
//
// Returns 0 when recorded, otherwise the wait in ms of the most restrictive
// full bucket.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local member = ARGV[#ARGV]
local wait = 0
for i = 1, #KEYS do
  local window = tonumber(ARGV[2 * i])
  local max = tonumber(ARGV[2 * i + 1])
  redis.call('ZREMRANGEBYSCORE', KEYS[i], '-inf', now - window)
  if redis.call('ZCARD', KEYS[i]) >= max then
    local oldest = redis.call('ZRANGE', KEYS[i], 0, 0, 'WITHSCORES')
    local w = window
    if oldest[2] then
      w = tonumber(oldest[2]) + window - now
    end
    if w > wait then wait = w end
  end
end
if wait > 0 then
  return wait
end
for i = 1, #KEYS do
  redis.call('ZADD', KEYS[i], now, member)
  redis.call('PEXPIRE', KEYS[i], tonumber(ARGV[2 * i]))
end
return 0
`)

// RedisStore shares buckets between API instances using one sorted set per
// bucket.
type RedisStore struct {
	rdb redis.Scripter
}

func NewRedisStore(rdb redis.Scripter) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) HitAll(ctx context.Context, buckets []Bucket, now time.Time) (Decision, error) {
	keys := make([]string, len(buckets))
	args := make([]any, 0, 2+2*len(buckets))
	args = append(args, now.UnixMilli())
	for i, b := range buckets {
		keys[i] = b.Key
		args = append(args, b.Window.Milliseconds(), b.Max)
	}
	args = append(args, uuid.NewString())

	waitMs, err := slidingWindowScript.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis: %w", err)
	}
	if waitMs > 0 {
		return Decision{Allowed: false, RetryAfter: time.Duration(waitMs) * time.Millisecond}, nil
	}
	return Decision{Allowed: true}, nil
}
