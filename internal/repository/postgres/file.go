package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const fileColumns = `id, workspace_id, path, name, content, file_type, size, is_directory, created_at, updated_at`

// FileRepository implements domain.FileRepository
type FileRepository struct {
	pool *pgxpool.Pool
}

// NewFileRepository creates a new file repository
func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

func scanFile(row pgx.Row) (*domain.File, error) {
	var f domain.File
	err := row.Scan(
		&f.ID,
		&f.WorkspaceID,
		&f.Path,
		&f.Name,
		&f.Content,
		&f.FileType,
		&f.Size,
		&f.IsDirectory,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFiles lists every file in a workspace ordered by path
func (r *FileRepository) GetFiles(ctx context.Context, workspaceID string) ([]domain.File, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+fileColumns+`
		FROM workspace_files
		WHERE workspace_id = $1
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}

	return files, nil
}

// GetFile returns the file at path, or nil if there is none
func (r *FileRepository) GetFile(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	f, err := scanFile(r.pool.QueryRow(ctx, `
		SELECT `+fileColumns+`
		FROM workspace_files
		WHERE workspace_id = $1 AND path = $2
	`, workspaceID, path))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// CreateFile inserts a new file
func (r *FileRepository) CreateFile(ctx context.Context, file *domain.File) error {
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

	_, err := r.pool.Exec(ctx, `
		INSERT INTO workspace_files (`+fileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		file.ID,
		file.WorkspaceID,
		file.Path,
		file.Name,
		file.Content,
		file.FileType,
		file.Size,
		file.IsDirectory,
		file.CreatedAt,
		file.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// UpdateFile applies a partial update to the file at path
func (r *FileRepository) UpdateFile(ctx context.Context, workspaceID, path string, update domain.FileUpdate) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE workspace_files SET
			name = COALESCE($3, name),
			content = COALESCE($4, content),
			file_type = COALESCE($5, file_type),
			size = COALESCE($6, size),
			is_directory = COALESCE($7, is_directory),
			updated_at = $8
		WHERE workspace_id = $1 AND path = $2
	`,
		workspaceID,
		path,
		update.Name,
		update.Content,
		update.FileType,
		update.Size,
		update.IsDirectory,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("file %s: %w", path, domain.ErrNotFound)
	}
	return nil
}

// DeleteFile removes the file at path; deleting a missing file is not an error
func (r *FileRepository) DeleteFile(ctx context.Context, workspaceID, path string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM workspace_files WHERE workspace_id = $1 AND path = $2`, workspaceID, path)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
