package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
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

	_, err := ex.Exec(ctx, `
		INSERT INTO chat_messages (id, workspace_id, chat_session_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		message.ID,
		message.WorkspaceID,
		message.ChatSessionID,
		string(message.Role),
		message.Content,
		metadataJSON,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// CreateMessage inserts a new chat message
func (r *MessageRepository) CreateMessage(ctx context.Context, message *domain.Message) error {
	return insertMessage(ctx, r.pool, message)
}

// GetMessages returns a session's messages in the workspace oldest first
func (r *MessageRepository) GetMessages(ctx context.Context, workspaceID, chatSessionID string) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, workspace_id, chat_session_id, role, content, metadata, created_at
		FROM chat_messages
		WHERE workspace_id = $1 AND chat_session_id = $2
		ORDER BY created_at ASC, id ASC
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

		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.ChatSessionID, &role, &m.Content, &metadataJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.MessageRole(role)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// DeleteMessagesAfter removes messages created strictly after the given time
func (r *MessageRepository) DeleteMessagesAfter(ctx context.Context, workspaceID, chatSessionID string, after time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM chat_messages
		WHERE workspace_id = $1 AND chat_session_id = $2 AND created_at > $3
	`, workspaceID, chatSessionID, after)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ReplaceMessages swaps a session's history for the given messages in one transaction
func (r *MessageRepository) ReplaceMessages(ctx context.Context, workspaceID, chatSessionID string, messages []domain.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM chat_messages
		WHERE workspace_id = $1 AND chat_session_id = $2
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

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
