package drivers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/drewburns/ai-phonecall/session"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements session.Store using Redis with optimistic locking.
// Each session is one JSON value, so every write is an atomic replace.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-based session store.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	if prefix == "" {
		prefix = "call:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Create implements session.Store.
// Overwrites any previous value and sets the TTL.
func (s *RedisStore) Create(ctx context.Context, data *session.CallSession) error {
	if data.CallID == "" {
		return session.ErrEmptyCallID
	}

	next := data.Clone()
	now := time.Now()
	next.CreatedAt = now
	next.UpdatedAt = now
	next.Version = 1

	val, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(data.CallID), val, s.ttl).Err(); err != nil {
		return err
	}

	*data = *next
	return nil
}

// Load implements session.Store.
// Refreshes TTL on every read.
func (s *RedisStore) Load(ctx context.Context, callID string) (*session.CallSession, error) {
	if callID == "" {
		return nil, session.ErrEmptyCallID
	}

	key := s.key(callID)
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.New(callID), nil
	}
	if err != nil {
		return nil, err
	}

	var data session.CallSession
	if err := json.Unmarshal(val, &data); err != nil {
		return nil, err
	}
	if data.Turns == nil {
		data.Turns = session.New(callID).Turns
	}

	// A failed refresh only shortens the session's life.
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &data, nil
}

// Save implements session.Store.
// Uses WATCH/MULTI/EXEC so a concurrent writer to the same key aborts this
// transaction instead of interleaving with it.
func (s *RedisStore) Save(ctx context.Context, data *session.CallSession) error {
	if data.CallID == "" {
		return session.ErrEmptyCallID
	}

	key := s.key(data.CallID)
	var next *session.CallSession

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		val, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored session.CallSession
			if err := json.Unmarshal(val, &stored); err != nil {
				return err
			}
			current = stored.Version
		}

		if current != data.Version {
			return session.ErrVersionConflict
		}

		next = data.Clone()
		now := time.Now()
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.Version++
		next.UpdatedAt = now

		newVal, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return session.ErrVersionConflict
	}
	if err != nil {
		return err
	}

	*data = *next
	return nil
}

// Clear implements session.Store.
func (s *RedisStore) Clear(ctx context.Context, callID string) error {
	return s.client.Del(ctx, s.key(callID)).Err()
}

// Close implements session.Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for a call identifier.
func (s *RedisStore) key(callID string) string {
	return s.prefix + callID
}

var _ session.Store = (*RedisStore)(nil)
