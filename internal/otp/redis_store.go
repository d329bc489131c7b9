package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "otp:v1:"

// RedisStore keeps pending codes in Redis with a TTL matching their
// expiry. Consume runs under WATCH so that a code superseded between the
// read and the delete is never consumed.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Redis-backed pending code store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put overwrites the pending code for the identifier.
func (s *RedisStore) Put(ctx context.Context, code PendingCode) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return err
	}
	ttl := code.ExpiresAt.Sub(code.IssuedAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.client.Set(ctx, redisKeyPrefix+code.Identifier, payload, ttl).Err()
}

// Consume deletes the pending code if accept approves it.
func (s *RedisStore) Consume(ctx context.Context, identifier string, accept func(PendingCode) bool) (bool, error) {
	key := redisKeyPrefix + identifier
	consumed := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var code PendingCode
		if err := json.Unmarshal(raw, &code); err != nil {
			return fmt.Errorf("decode pending code: %w", err)
		}
		if !accept(code) {
			return nil
		}

		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		}); err != nil {
			return err
		}
		consumed = true
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Superseded or consumed concurrently.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return consumed, nil
}
