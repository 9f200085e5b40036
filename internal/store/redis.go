package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore handles Redis operations. It backs the REST rate limiter;
// the relational stores never touch it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that needs it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// IncrementCounter bumps a fixed-window counter and returns the new
// count. The key expires two windows after its first increment.
func (s *RedisStore) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	windowKey := fmt.Sprintf("%s:%d", key, time.Now().Unix()/int64(window.Seconds()))

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
