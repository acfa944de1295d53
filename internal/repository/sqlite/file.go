package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/google/uuid"
)

const fileColumns = `id, workspace_id, path, name, content, file_type, size, is_directory, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*domain.File, error) {
	var f domain.File
	var createdAt, updatedAt int64
	if err := row.Scan(
		&f.ID,
		&f.WorkspaceID,
		&f.Path,
		&f.Name,
		&f.Content,
		&f.FileType,
		&f.Size,
		&f.IsDirectory,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	f.CreatedAt = fromUnix(createdAt)
	f.UpdatedAt = fromUnix(updatedAt)
	return &f, nil
}

// GetFiles returns every file in a workspace ordered by path
func (d *DB) GetFiles(ctx context.Context, workspaceID string) ([]domain.File, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+fileColumns+`
		FROM workspace_files
		WHERE workspace_id = ?
		ORDER BY path
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files := []domain.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// GetFile returns the file at path, or nil if there is none
func (d *DB) GetFile(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+fileColumns+`
		FROM workspace_files
		WHERE workspace_id = ? AND path = ?
	`, workspaceID, path)

	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// CreateFile inserts a new file, filling in ID and timestamps when unset
func (d *DB) CreateFile(ctx context.Context, file *domain.File) error {
	now := time.Now().UTC()
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	if file.UpdatedAt.IsZero() {
		file.UpdatedAt = now
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO workspace_files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		file.ID,
		file.WorkspaceID,
		file.Path,
		file.Name,
		file.Content,
		file.FileType,
		file.Size,
		boolToInt(file.IsDirectory),
		toUnix(file.CreatedAt),
		toUnix(file.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// UpdateFile applies a partial update to the file at path
func (d *DB) UpdateFile(ctx context.Context, workspaceID, path string, update domain.FileUpdate) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE workspace_files
		SET name = COALESCE(?, name),
		    content = COALESCE(?, content),
		    file_type = COALESCE(?, file_type),
		    size = COALESCE(?, size),
		    is_directory = COALESCE(?, is_directory),
		    updated_at = ?
		WHERE workspace_id = ? AND path = ?
	`,
		derefString(update.Name),
		derefString(update.Content),
		derefString(update.FileType),
		derefInt64(update.Size),
		derefBool(update.IsDirectory),
		toUnix(time.Now().UTC()),
		workspaceID,
		path,
	)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update file %s: %w", path, domain.ErrNotFound)
	}
	return nil
}

// DeleteFile removes the file at path; deleting a missing file is not an error
func (d *DB) DeleteFile(ctx context.Context, workspaceID, path string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM workspace_files WHERE workspace_id = ? AND path = ?`, workspaceID, path)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
