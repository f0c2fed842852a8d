package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a Redis client with raw get/set-with-expiry/delete operations
// over string keys. Every cached value is JSON-serialized text; TTLs are
// chosen by the caller per key family.
//
// Callers must treat any Store error as equivalent to a cache miss: a down
// Redis makes the system slower, never unavailable.
type Store struct {
	client *redis.Client
}

// NewStore constructs a Store over an already-connected client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Connect parses redisURL, creates a client, and verifies connectivity with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// Get retrieves the raw value stored under key.
// Returns nil, nil on a cache miss (not an error).
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, nil
}

// SetEx stores val under key with the given TTL. The value and its expiry
// are written in a single command, so no entry is ever partially written.
func (s *Store) SetEx(ctx context.Context, key string, ttl time.Duration, val []byte) error {
	if err := s.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry stored under key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}
