package domain

import (
	"context"
	"time"
)

// FileSnapshot is the minimal projection of a file kept in a checkpoint
type FileSnapshot struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Name        string `json:"name"`
	FileType    string `json:"file_type"`
	Size        int64  `json:"size"`
	IsDirectory bool   `json:"is_directory"`
}

// Checkpoint is an immutable snapshot of a workspace's complete file set,
// taken at the conversation turn identified by MessageID
type Checkpoint struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	MessageID   string         `json:"message_id"`
	Files       []FileSnapshot `json:"files"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CheckpointCreate represents checkpoint creation data
type CheckpointCreate struct {
	WorkspaceID string
	MessageID   string
	Files       []FileSnapshot
}

// CheckpointRepository defines the interface for checkpoint storage
type CheckpointRepository interface {
	CreateCheckpoint(ctx context.Context, input CheckpointCreate) (*Checkpoint, error)
	GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error)
	// RestoreCheckpoint replaces the workspace's file set with the snapshot in
	// one transaction. It reports false when there was nothing to apply.
	RestoreCheckpoint(ctx context.Context, checkpointID string) (bool, error)
	GetCheckpoints(ctx context.Context, workspaceID string) ([]Checkpoint, error)
}

// SnapshotOf projects a live file to its checkpoint form, dropping volatile metadata
func SnapshotOf(f File) FileSnapshot {
	return FileSnapshot{
		Path:        f.Path,
		Content:     f.Content,
		Name:        f.Name,
		FileType:    f.FileType,
		Size:        f.Size,
		IsDirectory: f.IsDirectory,
	}
}

// PreRevertState is the short-lived undo buffer captured before a revert.
// Messages belong to ChatSessionID, which is empty when no session was captured.
type PreRevertState struct {
	WorkspaceID   string    `json:"workspace_id"`
	ChatSessionID string    `json:"chat_session_id,omitempty"`
	Files         []File    `json:"files"`
	Messages      []Message `json:"messages"`
	Timestamp     time.Time `json:"timestamp"`
}

// OwnedBy reports whether the state was captured in workspaceID. States
// written without a workspace are matched by key alone.
func (s *PreRevertState) OwnedBy(workspaceID string) bool {
	return s.WorkspaceID == "" || s.WorkspaceID == workspaceID
}

// KeyValueStore is the durable fallback tier for pre-revert snapshots
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// CheckpointRequest represents a checkpoint creation request
type CheckpointRequest struct {
	MessageID string `json:"message_id" validate:"required,max=255"`
}

// PreRevertRequest identifies the revert a pre-revert state belongs to
type PreRevertRequest struct {
	ChatSessionID string `json:"chat_session_id" validate:"max=255"`
	MessageID     string `json:"message_id" validate:"required,max=255"`
}
