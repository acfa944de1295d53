package service

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/config"
	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testCheckpointConfig() config.CheckpointConfig {
	return config.CheckpointConfig{
		PreRevertTTL:    5 * time.Minute,
		RestoreMessages: true,
	}
}

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "workspace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Init(context.Background()))
	return db
}

func newTestCheckpointService(t *testing.T, db *sqlite.DB, cfg config.CheckpointConfig) (*CheckpointService, *fakeClock) {
	t.Helper()

	clock := newFakeClock(testEpoch)
	svc := NewCheckpointService(db, sqlite.NewKVStore(db), cfg)
	svc.now = clock.Now
	return svc, clock
}

func writeFile(t *testing.T, db *sqlite.DB, workspaceID, path, content string) {
	t.Helper()
	require.NoError(t, db.CreateFile(context.Background(), &domain.File{
		WorkspaceID: workspaceID,
		Path:        path,
		Name:        filepath.Base(path),
		Content:     content,
		FileType:    filepath.Ext(path),
		Size:        int64(len(content)),
	}))
}

func fileContents(t *testing.T, db *sqlite.DB, workspaceID string) map[string]string {
	t.Helper()

	files, err := db.GetFiles(context.Background(), workspaceID)
	require.NoError(t, err)

	out := make(map[string]string, len(files))
	for _, f := range files {
		out[f.Path] = f.Content
	}
	return out
}

func TestCheckpointService_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestCheckpointService(t, db, testCheckpointConfig())
	ctx := context.Background()

	writeFile(t, db, "ws1", "index.html", "<h1>hi</h1>")
	writeFile(t, db, "ws1", "src/app.js", "console.log(1)")
	writeFile(t, db, "ws1", "README.md", "# app")
	before := fileContents(t, db, "ws1")

	checkpoint, err := svc.CreateCheckpoint(ctx, "ws1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "ws1", checkpoint.WorkspaceID)
	assert.Equal(t, "m1", checkpoint.MessageID)
	assert.Len(t, checkpoint.Files, 3)

	newContent := "console.log(2)"
	require.NoError(t, db.UpdateFile(ctx, "ws1", "src/app.js", domain.FileUpdate{Content: &newContent}))
	require.NoError(t, db.DeleteFile(ctx, "ws1", "README.md"))
	writeFile(t, db, "ws1", "src/extra.js", "extra")

	applied, err := svc.RestoreCheckpoint(ctx, checkpoint.ID)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, before, fileContents(t, db, "ws1"))
}

func TestCheckpointService_RestoreDropsFilesAddedLater(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestCheckpointService(t, db, testCheckpointConfig())
	ctx := context.Background()

	writeFile(t, db, "ws1", "t1.txt", "one")
	writeFile(t, db, "ws1", "src/t2.js", "two")

	checkpoint, err := svc.CreateCheckpoint(ctx, "ws1", "m1")
	require.NoError(t, err)

	writeFile(t, db, "ws1", "docs/t3.md", "three")
	edited := "edited"
	require.NoError(t, db.UpdateFile(ctx, "ws1", "t1.txt", domain.FileUpdate{Content: &edited}))
	assert.Len(t, fileContents(t, db, "ws1"), 3)

	applied, err := svc.RestoreCheckpoint(ctx, checkpoint.ID)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, map[string]string{"t1.txt": "one", "src/t2.js": "two"}, fileContents(t, db, "ws1"))
}

func TestCheckpointService_RestoreUnknownCheckpoint(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestCheckpointService(t, db, testCheckpointConfig())

	applied, err := svc.RestoreCheckpoint(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestCheckpointService_GetCheckpointsScoped(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestCheckpointService(t, db, testCheckpointConfig())
	ctx := context.Background()

	writeFile(t, db, "ws1", "a.txt", "a")
	writeFile(t, db, "ws2", "b.txt", "b")

	for _, msg := range []string{"m1", "m2"} {
		_, err := svc.CreateCheckpoint(ctx, "ws1", msg)
		require.NoError(t, err)
	}
	_, err := svc.CreateCheckpoint(ctx, "ws2", "m9")
	require.NoError(t, err)

	checkpoints, err := svc.GetCheckpoints(ctx, "ws1")
	require.NoError(t, err)
	require.Len(t, checkpoints, 2)

	messages := []string{checkpoints[0].MessageID, checkpoints[1].MessageID}
	sort.Strings(messages)
	assert.Equal(t, []string{"m1", "m2"}, messages)
	for _, cp := range checkpoints {
		assert.Equal(t, "ws1", cp.WorkspaceID)
	}

	none, err := svc.GetCheckpoints(ctx, "ws3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCheckpointService_SettleDelays(t *testing.T) {
	db := openTestDB(t)
	cfg := testCheckpointConfig()
	cfg.SettleDelay = 100 * time.Millisecond
	cfg.MessageDeleteDelay = 50 * time.Millisecond
	svc, _ := newTestCheckpointService(t, db, cfg)

	var slept []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	ctx := context.Background()

	_, err := svc.CreateCheckpoint(ctx, "ws1", "m1")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, slept)

	slept = nil
	_, err = svc.DeleteMessagesAfter(ctx, "ws1", "s1", testEpoch)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, slept)
}

func TestCheckpointService_SettleDelayHonoursContext(t *testing.T) {
	db := openTestDB(t)
	cfg := testCheckpointConfig()
	cfg.SettleDelay = time.Hour
	svc, _ := newTestCheckpointService(t, db, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CreateCheckpoint(ctx, "ws1", "m1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckpointService_DeleteMessagesAfter(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestCheckpointService(t, db, testCheckpointConfig())
	ctx := context.Background()

	for i, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, db.CreateMessage(ctx, &domain.Message{
			ID:            id,
			WorkspaceID:   "ws1",
			ChatSessionID: "s1",
			Role:          domain.RoleUser,
			Content:       id,
			CreatedAt:     testEpoch.Add(time.Duration(i) * time.Minute),
		}))
	}

	deleted, err := svc.DeleteMessagesAfter(ctx, "ws1", "s1", testEpoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted, "a message exactly at the cutoff is kept")

	messages, err := db.GetMessages(ctx, "ws1", "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)
}

func TestCheckpointService_StoreErrorsPropagate(t *testing.T) {
	store := new(MockWorkspaceStore)
	svc := NewCheckpointService(store, nil, testCheckpointConfig())
	ctx := context.Background()
	boom := errors.New("disk full")

	store.On("Init", mock.Anything).Return(nil).Once()
	store.On("GetFiles", mock.Anything, "ws1").Return(nil, boom)
	store.On("RestoreCheckpoint", mock.Anything, "cp1").Return(false, boom)
	store.On("DeleteMessagesAfter", mock.Anything, "ws1", "s1", testEpoch).Return(0, boom)

	_, err := svc.CreateCheckpoint(ctx, "ws1", "m1")
	assert.ErrorIs(t, err, boom)

	applied, err := svc.RestoreCheckpoint(ctx, "cp1")
	assert.ErrorIs(t, err, boom)
	assert.False(t, applied)

	_, err = svc.DeleteMessagesAfter(ctx, "ws1", "s1", testEpoch)
	assert.ErrorIs(t, err, boom)

	err = svc.CapturePreRevertState(ctx, "ws1", "s1", "m1")
	assert.ErrorIs(t, err, boom)

	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "Init", 1)
}

func TestCheckpointService_InitFailure(t *testing.T) {
	store := new(MockWorkspaceStore)
	svc := NewCheckpointService(store, nil, testCheckpointConfig())
	boom := errors.New("locked")

	store.On("Init", mock.Anything).Return(boom).Once()
	store.On("Init", mock.Anything).Return(nil).Once()
	store.On("GetCheckpoints", mock.Anything, "ws1").Return([]domain.Checkpoint{}, nil)

	_, err := svc.GetCheckpoints(context.Background(), "ws1")
	assert.ErrorIs(t, err, boom)

	checkpoints, err := svc.GetCheckpoints(context.Background(), "ws1")
	require.NoError(t, err, "a failed init is retried")
	assert.Empty(t, checkpoints)
}
