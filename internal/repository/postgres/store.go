package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkspaceStore implements domain.WorkspaceStore on a shared Postgres
// database. The schema is owned by the migrations.
type WorkspaceStore struct {
	*FileRepository
	*MessageRepository
	*CheckpointRepository

	pool *pgxpool.Pool
}

// NewWorkspaceStore creates a new workspace store
func NewWorkspaceStore(pool *pgxpool.Pool) *WorkspaceStore {
	return &WorkspaceStore{
		FileRepository:       NewFileRepository(pool),
		MessageRepository:    NewMessageRepository(pool),
		CheckpointRepository: NewCheckpointRepository(pool),
		pool:                 pool,
	}
}

// Init verifies the database is reachable and migrated
func (s *WorkspaceStore) Init(ctx context.Context) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT to_regclass('public.checkpoints') IS NOT NULL`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("database schema is missing, run migrations first")
	}
	return nil
}
