package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// KVStore is a durable key-value table used as the pre-revert fallback
type KVStore struct {
	db *DB
}

// NewKVStore creates a new key-value store
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

// Get returns the value for key and whether it exists
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.db.Init(ctx); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key: %w", err)
	}
	return value, true, nil
}

// Set stores value under key
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.db.Init(ctx); err != nil {
		return err
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, toUnix(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Delete removes key
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.db.Init(ctx); err != nil {
		return err
	}

	if _, err := s.db.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Keys lists every key starting with prefix
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.db.Init(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT key FROM kv_store WHERE substr(key, 1, length(?)) = ? ORDER BY key
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
