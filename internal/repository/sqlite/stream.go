package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
)

// StreamRepository stores interrupted stream records. It shares the
// underlying connection with the rest of the local database.
type StreamRepository struct {
	db *DB
}

// NewStreamRepository creates a new stream repository
func NewStreamRepository(db *DB) *StreamRepository {
	return &StreamRepository{db: db}
}

// Init creates the schema if needed
func (r *StreamRepository) Init(ctx context.Context) error {
	return r.db.Init(ctx)
}

// GetStream returns a stream by ID, or nil if there is none
func (r *StreamRepository) GetStream(ctx context.Context, id string) (*domain.InterruptedStream, error) {
	var data string
	err := r.db.db.QueryRowContext(ctx, `SELECT data FROM interrupted_streams WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	var s domain.InterruptedStream
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream: %w", err)
	}
	return &s, nil
}

// PutStream inserts or replaces a stream record
func (r *StreamRepository) PutStream(ctx context.Context, stream *domain.InterruptedStream) error {
	data, err := json.Marshal(stream)
	if err != nil {
		return fmt.Errorf("failed to marshal stream: %w", err)
	}

	_, err = r.db.db.ExecContext(ctx, `
		INSERT INTO interrupted_streams (id, project_id, chat_session_id, status, last_updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			project_id = excluded.project_id,
			chat_session_id = excluded.chat_session_id,
			status = excluded.status,
			last_updated_at = excluded.last_updated_at,
			data = excluded.data
	`,
		stream.ID,
		stream.ProjectID,
		stream.ChatSessionID,
		string(stream.Status),
		toUnix(stream.LastUpdatedAt),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to put stream: %w", err)
	}
	return nil
}

// DeleteStream removes a stream record
func (r *StreamRepository) DeleteStream(ctx context.Context, id string) error {
	if _, err := r.db.db.ExecContext(ctx, `DELETE FROM interrupted_streams WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete stream: %w", err)
	}
	return nil
}

// ListStreamsByProject returns a project's streams, most recently updated first
func (r *StreamRepository) ListStreamsByProject(ctx context.Context, projectID string) ([]domain.InterruptedStream, error) {
	return r.list(ctx, `WHERE project_id = ?`, projectID)
}

// ListStreamsBySession returns a chat session's streams, most recently updated first
func (r *StreamRepository) ListStreamsBySession(ctx context.Context, chatSessionID string) ([]domain.InterruptedStream, error) {
	return r.list(ctx, `WHERE chat_session_id = ?`, chatSessionID)
}

// ListStreamsByStatus returns all streams in the given status
func (r *StreamRepository) ListStreamsByStatus(ctx context.Context, status domain.StreamStatus) ([]domain.InterruptedStream, error) {
	return r.list(ctx, `WHERE status = ?`, string(status))
}

func (r *StreamRepository) list(ctx context.Context, where string, arg any) ([]domain.InterruptedStream, error) {
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT data FROM interrupted_streams `+where+`
		ORDER BY last_updated_at DESC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	defer rows.Close()

	streams := []domain.InterruptedStream{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		var s domain.InterruptedStream
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stream: %w", err)
		}
		streams = append(streams, s)
	}
	return streams, rows.Err()
}

// DeleteStreamsUpdatedBefore removes every record last updated before cutoff
func (r *StreamRepository) DeleteStreamsUpdatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM interrupted_streams WHERE last_updated_at < ?`, toUnix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old streams: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted streams: %w", err)
	}
	return int(n), nil
}
