package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/metrics"
	"github.com/rs/zerolog/log"
)

const preRevertKeyPrefix = "preRevertState_"

func preRevertKey(workspaceID, messageID string) string {
	return preRevertKeyPrefix + workspaceID + "_" + messageID
}

func preRevertScope(workspaceID string) string {
	return preRevertKeyPrefix + workspaceID + "_"
}

// PreRevertStore holds captured pre-revert states by key.
// Get returns nil, nil on a miss.
type PreRevertStore interface {
	Get(ctx context.Context, key string) (*domain.PreRevertState, error)
	Set(ctx context.Context, key string, state *domain.PreRevertState) error
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, scope string) ([]string, error)
}

// memoryStateStore is the fast in-process tier
type memoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*domain.PreRevertState
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: make(map[string]*domain.PreRevertState)}
}

func (m *memoryStateStore) Get(_ context.Context, key string) (*domain.PreRevertState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[key], nil
}

func (m *memoryStateStore) Set(_ context.Context, key string, state *domain.PreRevertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = state
	return nil
}

func (m *memoryStateStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}

func (m *memoryStateStore) ListKeys(_ context.Context, scope string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.states))
	for key := range m.states {
		if strings.HasPrefix(key, scope) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// fallbackStateStore serializes states as JSON into a durable key-value store
type fallbackStateStore struct {
	kv domain.KeyValueStore
}

func newFallbackStateStore(kv domain.KeyValueStore) *fallbackStateStore {
	return &fallbackStateStore{kv: kv}
}

func (f *fallbackStateStore) Get(ctx context.Context, key string) (*domain.PreRevertState, error) {
	data, ok, err := f.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var state domain.PreRevertState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode pre-revert state: %w", err)
	}
	return &state, nil
}

func (f *fallbackStateStore) Set(ctx context.Context, key string, state *domain.PreRevertState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode pre-revert state: %w", err)
	}
	return f.kv.Set(ctx, key, data)
}

func (f *fallbackStateStore) Delete(ctx context.Context, key string) error {
	return f.kv.Delete(ctx, key)
}

func (f *fallbackStateStore) ListKeys(ctx context.Context, scope string) ([]string, error) {
	return f.kv.Keys(ctx, scope)
}

// tieredStateStore writes through to both tiers and reads memory first.
// Fallback failures are logged and never returned.
type tieredStateStore struct {
	memory   *memoryStateStore
	fallback PreRevertStore
}

func newTieredStateStore(fallback PreRevertStore) *tieredStateStore {
	return &tieredStateStore{
		memory:   newMemoryStateStore(),
		fallback: fallback,
	}
}

// Get looks a key up and promotes fallback hits into memory
func (t *tieredStateStore) Get(ctx context.Context, key string) (*domain.PreRevertState, error) {
	return t.lookup(ctx, key, true), nil
}

// Peek looks a key up without touching either tier
func (t *tieredStateStore) Peek(ctx context.Context, key string) *domain.PreRevertState {
	return t.lookup(ctx, key, false)
}

func (t *tieredStateStore) lookup(ctx context.Context, key string, promote bool) *domain.PreRevertState {
	if state, _ := t.memory.Get(ctx, key); state != nil {
		return state
	}
	if t.fallback == nil {
		return nil
	}

	state, err := t.fallback.Get(ctx, key)
	if err != nil {
		metrics.RecordFallbackError("get")
		log.Warn().Err(err).Str("key", key).Msg("Failed to read pre-revert state from fallback")
		return nil
	}
	if state != nil && promote {
		_ = t.memory.Set(ctx, key, state)
	}
	return state
}

func (t *tieredStateStore) Set(ctx context.Context, key string, state *domain.PreRevertState) error {
	_ = t.memory.Set(ctx, key, state)

	if t.fallback != nil {
		if err := t.fallback.Set(ctx, key, state); err != nil {
			metrics.RecordFallbackError("set")
			log.Warn().Err(err).Str("key", key).Msg("Failed to write pre-revert state to fallback")
		}
	}
	return nil
}

func (t *tieredStateStore) Delete(ctx context.Context, key string) error {
	_ = t.memory.Delete(ctx, key)
	t.deleteFallback(ctx, key)
	return nil
}

func (t *tieredStateStore) deleteFallback(ctx context.Context, key string) {
	if t.fallback == nil {
		return
	}
	if err := t.fallback.Delete(ctx, key); err != nil {
		metrics.RecordFallbackError("delete")
		log.Warn().Err(err).Str("key", key).Msg("Failed to delete pre-revert state from fallback")
	}
}

// ListKeys returns the union of both tiers' keys under scope
func (t *tieredStateStore) ListKeys(ctx context.Context, scope string) ([]string, error) {
	keys, _ := t.memory.ListKeys(ctx, scope)
	return mergeKeys(keys, t.fallbackKeys(ctx, scope)), nil
}

func (t *tieredStateStore) fallbackKeys(ctx context.Context, scope string) []string {
	if t.fallback == nil {
		return nil
	}
	keys, err := t.fallback.ListKeys(ctx, scope)
	if err != nil {
		metrics.RecordFallbackError("list")
		log.Warn().Err(err).Str("scope", scope).Msg("Failed to list pre-revert states in fallback")
		return nil
	}
	return keys
}

func mergeKeys(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, key := range list {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
