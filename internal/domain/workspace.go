package domain

import (
	"context"
	"time"
)

// File represents a live file in a workspace
type File struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Content     string    `json:"content"`
	FileType    string    `json:"file_type"`
	Size        int64     `json:"size"`
	IsDirectory bool      `json:"is_directory"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FileUpdate represents a partial file update; nil fields are left untouched
type FileUpdate struct {
	Name        *string `json:"name,omitempty"`
	Content     *string `json:"content,omitempty"`
	FileType    *string `json:"file_type,omitempty"`
	Size        *int64  `json:"size,omitempty"`
	IsDirectory *bool   `json:"is_directory,omitempty"`
}

// FileRepository defines the interface for workspace file storage
type FileRepository interface {
	GetFiles(ctx context.Context, workspaceID string) ([]File, error)
	GetFile(ctx context.Context, workspaceID, path string) (*File, error)
	CreateFile(ctx context.Context, file *File) error
	UpdateFile(ctx context.Context, workspaceID, path string, update FileUpdate) error
	DeleteFile(ctx context.Context, workspaceID, path string) error
}

// WorkspaceStore is the persistence collaborator used by the checkpoint service.
// Init must complete before any other call.
type WorkspaceStore interface {
	Init(ctx context.Context) error
	FileRepository
	MessageRepository
	CheckpointRepository
}
