package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a migrated database named by POSTGRES_TEST_DSN
func setupStore(t *testing.T) *WorkspaceStore {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewWorkspaceStore(pool)
	require.NoError(t, store.Init(ctx))
	return store
}

func TestWorkspaceStore_CheckpointRestore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	ws := uuid.New().String()

	for path, content := range map[string]string{"t1.txt": "one", "src/t2.js": "two"} {
		require.NoError(t, store.CreateFile(ctx, &domain.File{
			WorkspaceID: ws,
			Path:        path,
			Name:        path,
			Content:     content,
			Size:        int64(len(content)),
		}))
	}

	files, err := store.GetFiles(ctx, ws)
	require.NoError(t, err)

	snapshots := make([]domain.FileSnapshot, len(files))
	for i, f := range files {
		snapshots[i] = domain.SnapshotOf(f)
	}
	cp, err := store.CreateCheckpoint(ctx, domain.CheckpointCreate{WorkspaceID: ws, MessageID: "m1", Files: snapshots})
	require.NoError(t, err)

	require.NoError(t, store.CreateFile(ctx, &domain.File{WorkspaceID: ws, Path: "docs/t3.md", Content: "three"}))
	edited := "edited"
	require.NoError(t, store.UpdateFile(ctx, ws, "t1.txt", domain.FileUpdate{Content: &edited}))

	applied, err := store.RestoreCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	assert.True(t, applied)

	files, err = store.GetFiles(ctx, ws)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "src/t2.js", files[0].Path)
	assert.Equal(t, "t1.txt", files[1].Path)
	assert.Equal(t, "one", files[1].Content)

	applied, err = store.RestoreCheckpoint(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.False(t, applied)

	checkpoints, err := store.GetCheckpoints(ctx, ws)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	assert.Len(t, checkpoints[0].Files, 2)
}
