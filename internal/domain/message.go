package domain

import (
	"context"
	"time"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message represents a chat message in a workspace
type Message struct {
	ID            string         `json:"id"`
	WorkspaceID   string         `json:"workspace_id"`
	ChatSessionID string         `json:"chat_session_id"`
	Role          MessageRole    `json:"role"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	CreateMessage(ctx context.Context, message *Message) error
	// GetMessages returns a session's messages oldest first. Only messages
	// belonging to workspaceID are visible.
	GetMessages(ctx context.Context, workspaceID, chatSessionID string) ([]Message, error)
	// DeleteMessagesAfter removes messages created strictly after the given time
	DeleteMessagesAfter(ctx context.Context, workspaceID, chatSessionID string, after time.Time) (int, error)
	// ReplaceMessages swaps a session's history in workspaceID for the given messages
	ReplaceMessages(ctx context.Context, workspaceID, chatSessionID string, messages []Message) error
}
