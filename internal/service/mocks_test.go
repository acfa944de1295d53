package service

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockWorkspaceStore mocks the WorkspaceStore interface
type MockWorkspaceStore struct {
	mock.Mock
}

func (m *MockWorkspaceStore) Init(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockWorkspaceStore) GetFiles(ctx context.Context, workspaceID string) ([]domain.File, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.File), args.Error(1)
}

func (m *MockWorkspaceStore) GetFile(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	args := m.Called(ctx, workspaceID, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.File), args.Error(1)
}

func (m *MockWorkspaceStore) CreateFile(ctx context.Context, file *domain.File) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *MockWorkspaceStore) UpdateFile(ctx context.Context, workspaceID, path string, update domain.FileUpdate) error {
	args := m.Called(ctx, workspaceID, path, update)
	return args.Error(0)
}

func (m *MockWorkspaceStore) DeleteFile(ctx context.Context, workspaceID, path string) error {
	args := m.Called(ctx, workspaceID, path)
	return args.Error(0)
}

func (m *MockWorkspaceStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockWorkspaceStore) GetMessages(ctx context.Context, workspaceID, chatSessionID string) ([]domain.Message, error) {
	args := m.Called(ctx, workspaceID, chatSessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockWorkspaceStore) DeleteMessagesAfter(ctx context.Context, workspaceID, chatSessionID string, after time.Time) (int, error) {
	args := m.Called(ctx, workspaceID, chatSessionID, after)
	return args.Int(0), args.Error(1)
}

func (m *MockWorkspaceStore) ReplaceMessages(ctx context.Context, workspaceID, chatSessionID string, messages []domain.Message) error {
	args := m.Called(ctx, workspaceID, chatSessionID, messages)
	return args.Error(0)
}

func (m *MockWorkspaceStore) CreateCheckpoint(ctx context.Context, input domain.CheckpointCreate) (*domain.Checkpoint, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Checkpoint), args.Error(1)
}

func (m *MockWorkspaceStore) GetCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Checkpoint), args.Error(1)
}

func (m *MockWorkspaceStore) RestoreCheckpoint(ctx context.Context, checkpointID string) (bool, error) {
	args := m.Called(ctx, checkpointID)
	return args.Bool(0), args.Error(1)
}

func (m *MockWorkspaceStore) GetCheckpoints(ctx context.Context, workspaceID string) ([]domain.Checkpoint, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Checkpoint), args.Error(1)
}

// MockKeyValueStore mocks the KeyValueStore interface
type MockKeyValueStore struct {
	mock.Mock
}

func (m *MockKeyValueStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockKeyValueStore) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockKeyValueStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKeyValueStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// fakeClock is a settable clock safe for use from timer goroutines
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
