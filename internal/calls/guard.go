package calls

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"callbridge/pkg/utils"
)

// Guard keeps a Destination on at most one call at a time.
type Guard interface {
	Acquire(ctx context.Context, destinationID, callID string) (bool, error)
	Release(ctx context.Context, destinationID, callID string) error
}

// RedisGuard is a lease per Destination owned by the call holding it and
// shared by every process. The lease TTL bounds how long a crashed holder
// blocks the Destination.
type RedisGuard struct {
	rdb redis.Scripter
	ttl time.Duration
}

func NewRedisGuard(rdb redis.Scripter, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func guardKey(destinationID string) string { return "guard:destination:" + destinationID }

func (g *RedisGuard) Acquire(ctx context.Context, destinationID, callID string) (bool, error) {
	return utils.AcquireLease(ctx, g.rdb, guardKey(destinationID), callID, g.ttl)
}

// Release frees the Destination only if callID still holds it.
func (g *RedisGuard) Release(ctx context.Context, destinationID, callID string) error {
	return utils.ReleaseLease(ctx, g.rdb, guardKey(destinationID), callID)
}

// MemoryGuard is the single-process variant.
type MemoryGuard struct {
	mu      sync.Mutex
	holders map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{holders: map[string]string{}}
}

func (g *MemoryGuard) Acquire(_ context.Context, destinationID, callID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if holder, ok := g.holders[destinationID]; ok && holder != callID {
		return false, nil
	}
	g.holders[destinationID] = callID
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, destinationID, callID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holders[destinationID] == callID {
		delete(g.holders, destinationID)
	}
	return nil
}
