package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/google/uuid"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, ex execer, message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	var metadataJSON []byte
	if message.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(message.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO chat_messages (id, workspace_id, chat_session_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		message.ID,
		message.WorkspaceID,
		message.ChatSessionID,
		string(message.Role),
		message.Content,
		metadataJSON,
		toUnix(message.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// CreateMessage inserts a new chat message
func (d *DB) CreateMessage(ctx context.Context, message *domain.Message) error {
	return insertMessage(ctx, d.db, message)
}

// GetMessages returns a session's messages in the workspace in chronological order
func (d *DB) GetMessages(ctx context.Context, workspaceID, chatSessionID string) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, workspace_id, chat_session_id, role, content, metadata, created_at
		FROM chat_messages
		WHERE workspace_id = ? AND chat_session_id = ?
		ORDER BY created_at, id
	`, workspaceID, chatSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var role string
		var metadataJSON []byte
		var createdAt int64

		if err := rows.Scan(
			&m.ID,
			&m.WorkspaceID,
			&m.ChatSessionID,
			&role,
			&m.Content,
			&metadataJSON,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.MessageRole(role)
		m.CreatedAt = fromUnix(createdAt)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeleteMessagesAfter removes messages created strictly after the given time
func (d *DB) DeleteMessagesAfter(ctx context.Context, workspaceID, chatSessionID string, after time.Time) (int, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM chat_messages
		WHERE workspace_id = ? AND chat_session_id = ? AND created_at > ?
	`, workspaceID, chatSessionID, toUnix(after))
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted messages: %w", err)
	}
	return int(n), nil
}

// ReplaceMessages swaps a session's history for the given messages
func (d *DB) ReplaceMessages(ctx context.Context, workspaceID, chatSessionID string, messages []domain.Message) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chat_messages
		WHERE workspace_id = ? AND chat_session_id = ?
	`, workspaceID, chatSessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	for i := range messages {
		m := messages[i]
		m.WorkspaceID = workspaceID
		m.ChatSessionID = chatSessionID
		if err := insertMessage(ctx, tx, &m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}
