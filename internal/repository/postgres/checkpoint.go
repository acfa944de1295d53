package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/repository/snapshot"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckpointRepository implements domain.CheckpointRepository
type CheckpointRepository struct {
	pool *pgxpool.Pool
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(pool *pgxpool.Pool) *CheckpointRepository {
	return &CheckpointRepository{pool: pool}
}

// CreateCheckpoint persists a new immutable checkpoint
func (r *CheckpointRepository) CreateCheckpoint(ctx context.Context, input domain.CheckpointCreate) (*domain.Checkpoint, error) {
	files := input.Files
	if files == nil {
		files = []domain.FileSnapshot{}
	}

	blob, err := snapshot.EncodeFiles(files)
	if err != nil {
		return nil, err
	}

	cp := &domain.Checkpoint{
		ID:          uuid.New().String(),
		WorkspaceID: input.WorkspaceID,
		MessageID:   input.MessageID,
		Files:       files,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO checkpoints (id, workspace_id, message_id, files, file_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cp.ID, cp.WorkspaceID, cp.MessageID, blob, len(files), cp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint: %w", err)
	}

	return cp, nil
}

func scanCheckpoint(row pgx.Row) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var blob []byte
	if err := row.Scan(&cp.ID, &cp.WorkspaceID, &cp.MessageID, &blob, &cp.CreatedAt); err != nil {
		return nil, err
	}

	files, err := snapshot.DecodeFiles(blob)
	if err != nil {
		return nil, err
	}
	cp.Files = files
	return &cp, nil
}

// GetCheckpoint returns a checkpoint by ID, or nil if there is none
func (r *CheckpointRepository) GetCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	cp, err := scanCheckpoint(r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, message_id, files, created_at
		FROM checkpoints
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp, nil
}

// GetCheckpoints lists a workspace's checkpoints oldest first
func (r *CheckpointRepository) GetCheckpoints(ctx context.Context, workspaceID string) ([]domain.Checkpoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, workspace_id, message_id, files, created_at
		FROM checkpoints
		WHERE workspace_id = $1
		ORDER BY created_at ASC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []domain.Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}

	return checkpoints, nil
}

// RestoreCheckpoint makes the workspace's file set exactly match the
// checkpoint in one transaction. It returns false if the checkpoint does not exist.
func (r *CheckpointRepository) RestoreCheckpoint(ctx context.Context, checkpointID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cp, err := scanCheckpoint(tx.QueryRow(ctx, `
		SELECT id, workspace_id, message_id, files, created_at
		FROM checkpoints
		WHERE id = $1
		FOR SHARE
	`, checkpointID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	paths := make([]string, len(cp.Files))
	for i, f := range cp.Files {
		paths[i] = f.Path
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM workspace_files
		WHERE workspace_id = $1 AND NOT (path = ANY($2))
	`, cp.WorkspaceID, paths); err != nil {
		return false, fmt.Errorf("failed to delete files: %w", err)
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, f := range cp.Files {
		batch.Queue(`
			INSERT INTO workspace_files (`+fileColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			ON CONFLICT (workspace_id, path) DO UPDATE SET
				name = EXCLUDED.name,
				content = EXCLUDED.content,
				file_type = EXCLUDED.file_type,
				size = EXCLUDED.size,
				is_directory = EXCLUDED.is_directory,
				updated_at = EXCLUDED.updated_at
		`,
			uuid.New().String(),
			cp.WorkspaceID,
			f.Path,
			f.Name,
			f.Content,
			f.FileType,
			f.Size,
			f.IsDirectory,
			now,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("failed to write files: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}
