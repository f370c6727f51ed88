package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authsim-dev/authsim/domain"
)

// RedisStore implements Store using Redis. Sessions are stored as JSON values
// under a prefixed key with a per-key TTL, so Redis itself garbage-collects
// records the Manager never touches again.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new RedisStore. The prefix namespaces keys so one
// Redis instance can back several managers.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

// Get implements Store.Get.
func (r *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Set implements Store.Set.
func (r *RedisStore) Set(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	return nil
}

// Delete implements Store.Delete.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

// Exists implements Store.Exists.
func (r *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session in Redis: %w", err)
	}
	return n > 0, nil
}

// Clear implements Store.Clear. It removes every key under the store's
// prefix.
func (r *RedisStore) Clear(ctx context.Context) error {
	keys, err := r.client.Keys(ctx, r.prefix+":session:*").Result()
	if err != nil {
		return fmt.Errorf("failed to list sessions in Redis: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear sessions in Redis: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
