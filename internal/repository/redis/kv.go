package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KVStore implements domain.KeyValueStore on Redis. Entries carry an expiry
// so abandoned pre-revert snapshots do not accumulate.
type KVStore struct {
	client *Client
	ttl    time.Duration
}

// NewKVStore creates a new Redis-backed key-value store; ttl <= 0 disables expiry
func NewKVStore(client *Client, ttl time.Duration) *KVStore {
	return &KVStore{client: client, ttl: ttl}
}

// Get returns the value for key and whether it exists
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key: %w", err)
	}
	return data, true, nil
}

// Set stores value under key
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Delete removes key
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Keys lists every key starting with prefix
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(prefix) + "*"
	var cursor uint64
	var keys []string

	for {
		batch, next, err := s.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return keys, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
