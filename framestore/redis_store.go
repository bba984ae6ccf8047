package framestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces frame keys.
const DefaultRedisPrefix = "screenhub:frame:"

// RedisStore keeps frames in Redis under prefix+clientID.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed frame store.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := NewRedisStore(client, "", time.Minute)
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl < 0 {
		ttl = 0
	}

	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Put implements Store. A zero TTL stores the frame without expiry.
func (s *RedisStore) Put(ctx context.Context, clientID string, blob string) error {
	if err := s.client.Set(ctx, s.prefix+clientID, blob, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set frame: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, clientID string) (string, error) {
	blob, err := s.client.Get(ctx, s.prefix+clientID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get frame: %w", err)
	}

	return blob, nil
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, clientID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+clientID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists frame: %w", err)
	}
	return n > 0, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, s.prefix+clientID).Err(); err != nil {
		return fmt.Errorf("redis delete frame: %w", err)
	}
	return nil
}

// Len implements Store. It scans the key space for the prefix, so it is
// meant for diagnostics rather than hot paths.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}

	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("redis scan frames: %w", err)
	}

	return count, nil
}
