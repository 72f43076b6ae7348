package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"callbridge/internal/apperr"
)

const maxUpdateRetries = 16

// RedisStore keeps each session as a JSON value that expires with the
// session. Updates use optimistic WATCH/MULTI so concurrent requests from one
// User never lose a recent-list entry.
type RedisStore struct {
	rdb    *redis.Client
	clock  clockwork.Clock
	prefix string
}

func NewRedisStore(rdb *redis.Client, clk clockwork.Clock) *RedisStore {
	return &RedisStore{rdb: rdb, clock: clk, prefix: "session:"}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Create(ctx context.Context, s Session) error {
	raw, ttl, err := r.encode(s)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, r.key(s.ID), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	if !ok {
		return apperr.Conflict("session %s already exists", s.ID)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	raw, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, apperr.NotFound("session not found")
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: get: %w", err)
	}
	return r.decode(raw)
}

func (r *RedisStore) Update(ctx context.Context, id string, fn func(*Session) error) (Session, error) {
	key := r.key(id)
	var out Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperr.NotFound("session not found")
		}
		if err != nil {
			return err
		}
		s, err := r.decode(raw)
		if err != nil {
			return err
		}
		if err := fn(&s); err != nil {
			return err
		}
		next, ttl, err := r.encode(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, next, ttl)
			return nil
		})
		if err == nil {
			out = s
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("session: update: %w", err)
	}
	return Session{}, fmt.Errorf("session: update: too much contention on %s", id)
}

func (r *RedisStore) Active(ctx context.Context, id string) (bool, error) {
	s, err := r.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.usable(r.clock.Now()), nil
}

func (r *RedisStore) Revoke(ctx context.Context, id string) error {
	_, err := r.Update(ctx, id, func(s *Session) error {
		s.Revoked = true
		return nil
	})
	return err
}

func (r *RedisStore) encode(s Session) ([]byte, time.Duration, error) {
	ttl := s.ExpiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		return nil, 0, apperr.Expired("session expired")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, 0, fmt.Errorf("session: encode: %w", err)
	}
	return raw, ttl, nil
}

func (r *RedisStore) decode(raw []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("session: decode: %w", err)
	}
	return s, nil
}
