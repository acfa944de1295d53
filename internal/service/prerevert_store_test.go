package service

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreRevertKey(t *testing.T) {
	assert.Equal(t, "preRevertState_ws1_m1", preRevertKey("ws1", "m1"))
	assert.Equal(t, "preRevertState_ws1_", preRevertScope("ws1"))
}

func TestMemoryStateStore(t *testing.T) {
	store := newMemoryStateStore()
	ctx := context.Background()
	state := &domain.PreRevertState{Timestamp: testEpoch}

	require.NoError(t, store.Set(ctx, preRevertKey("ws1", "m2"), state))
	require.NoError(t, store.Set(ctx, preRevertKey("ws1", "m1"), state))
	require.NoError(t, store.Set(ctx, preRevertKey("ws2", "m1"), state))

	keys, err := store.ListKeys(ctx, preRevertScope("ws1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"preRevertState_ws1_m1", "preRevertState_ws1_m2"}, keys)

	got, err := store.Get(ctx, preRevertKey("ws2", "m1"))
	require.NoError(t, err)
	assert.Same(t, state, got)

	require.NoError(t, store.Delete(ctx, preRevertKey("ws2", "m1")))
	got, err = store.Get(ctx, preRevertKey("ws2", "m1"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFallbackStateStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := newFallbackStateStore(sqlite.NewKVStore(db))
	ctx := context.Background()

	state := &domain.PreRevertState{
		Files: []domain.File{{ID: "f1", WorkspaceID: "ws1", Path: "a.txt", Content: "1", Size: 1}},
		Messages: []domain.Message{
			{ID: "u1", ChatSessionID: "s1", Role: domain.RoleUser, Content: "hi", CreatedAt: testEpoch},
		},
		Timestamp: testEpoch,
	}
	require.NoError(t, store.Set(ctx, "k", state))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a.txt", got.Files[0].Path)
	assert.Equal(t, "hi", got.Messages[0].Content)
	assert.True(t, got.Timestamp.Equal(testEpoch))

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFallbackStateStore_CorruptValue(t *testing.T) {
	db := openTestDB(t)
	kv := sqlite.NewKVStore(db)
	store := newFallbackStateStore(kv)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte("{not json")))

	_, err := store.Get(ctx, "k")
	assert.Error(t, err)

	tiered := newTieredStateStore(store)
	assert.Nil(t, tiered.Peek(ctx, "k"), "corrupt fallback entries read as absent")
}

func TestTieredStateStore_Promotion(t *testing.T) {
	db := openTestDB(t)
	fallback := newFallbackStateStore(sqlite.NewKVStore(db))
	ctx := context.Background()

	require.NoError(t, fallback.Set(ctx, "k", &domain.PreRevertState{Timestamp: testEpoch}))
	tiered := newTieredStateStore(fallback)

	assert.NotNil(t, tiered.Peek(ctx, "k"))
	inMemory, _ := tiered.memory.Get(ctx, "k")
	assert.Nil(t, inMemory)

	got, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	inMemory, _ = tiered.memory.Get(ctx, "k")
	assert.NotNil(t, inMemory, "fallback hits are promoted")
}

func TestTieredStateStore_WriteThroughAndListKeys(t *testing.T) {
	db := openTestDB(t)
	kv := sqlite.NewKVStore(db)
	tiered := newTieredStateStore(newFallbackStateStore(kv))
	ctx := context.Background()

	require.NoError(t, tiered.Set(ctx, preRevertKey("ws1", "m1"), &domain.PreRevertState{Timestamp: time.Now()}))

	_, ok, err := kv.Get(ctx, preRevertKey("ws1", "m1"))
	require.NoError(t, err)
	assert.True(t, ok)

	// only in the durable tier
	require.NoError(t, kv.Set(ctx, preRevertKey("ws1", "m2"), []byte(`{}`)))

	keys, err := tiered.ListKeys(ctx, preRevertScope("ws1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"preRevertState_ws1_m1", "preRevertState_ws1_m2"}, keys)

	require.NoError(t, tiered.Delete(ctx, preRevertKey("ws1", "m1")))
	assert.Nil(t, tiered.Peek(ctx, preRevertKey("ws1", "m1")))
}

func TestMergeKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, mergeKeys([]string{"c", "a"}, []string{"a", "b"}))
	assert.Empty(t, mergeKeys(nil, nil))
}
