package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/repository/snapshot"
	"github.com/google/uuid"
)

// CreateCheckpoint persists a new immutable checkpoint
func (d *DB) CreateCheckpoint(ctx context.Context, input domain.CheckpointCreate) (*domain.Checkpoint, error) {
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

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, workspace_id, message_id, files, file_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, cp.ID, cp.WorkspaceID, cp.MessageID, blob, len(files), toUnix(cp.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint: %w", err)
	}

	return cp, nil
}

func scanCheckpoint(row rowScanner) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var blob []byte
	var createdAt int64
	if err := row.Scan(&cp.ID, &cp.WorkspaceID, &cp.MessageID, &blob, &createdAt); err != nil {
		return nil, err
	}

	files, err := snapshot.DecodeFiles(blob)
	if err != nil {
		return nil, err
	}
	cp.Files = files
	cp.CreatedAt = fromUnix(createdAt)
	return &cp, nil
}

// GetCheckpoint returns a checkpoint by ID, or nil if there is none
func (d *DB) GetCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, message_id, files, created_at
		FROM checkpoints
		WHERE id = ?
	`, id)

	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp, nil
}

// GetCheckpoints returns a workspace's checkpoints oldest first
func (d *DB) GetCheckpoints(ctx context.Context, workspaceID string) ([]domain.Checkpoint, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, workspace_id, message_id, files, created_at
		FROM checkpoints
		WHERE workspace_id = ?
		ORDER BY created_at, id
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
	return checkpoints, rows.Err()
}

// RestoreCheckpoint makes the workspace's file set exactly match the
// checkpoint: files missing from the snapshot are removed, the rest are
// created or overwritten. It returns false if the checkpoint does not exist.
func (d *DB) RestoreCheckpoint(ctx context.Context, checkpointID string) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, workspace_id, message_id, files, created_at
		FROM checkpoints
		WHERE id = ?
	`, checkpointID)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	keep := make(map[string]struct{}, len(cp.Files))
	for _, f := range cp.Files {
		keep[f.Path] = struct{}{}
	}

	rows, err := tx.QueryContext(ctx, `SELECT path FROM workspace_files WHERE workspace_id = ?`, cp.WorkspaceID)
	if err != nil {
		return false, fmt.Errorf("failed to list files: %w", err)
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return false, fmt.Errorf("failed to scan path: %w", err)
		}
		if _, ok := keep[path]; !ok {
			stale = append(stale, path)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to list files: %w", err)
	}

	for _, path := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM workspace_files WHERE workspace_id = ? AND path = ?`, cp.WorkspaceID, path); err != nil {
			return false, fmt.Errorf("failed to delete file: %w", err)
		}
	}

	now := toUnix(time.Now().UTC())
	for _, f := range cp.Files {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workspace_files (`+fileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (workspace_id, path) DO UPDATE SET
				name = excluded.name,
				content = excluded.content,
				file_type = excluded.file_type,
				size = excluded.size,
				is_directory = excluded.is_directory,
				updated_at = excluded.updated_at
		`,
			uuid.New().String(),
			cp.WorkspaceID,
			f.Path,
			f.Name,
			f.Content,
			f.FileType,
			f.Size,
			boolToInt(f.IsDirectory),
			now,
			now,
		)
		if err != nil {
			return false, fmt.Errorf("failed to restore file %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit restore: %w", err)
	}
	return true, nil
}
