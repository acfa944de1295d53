package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/config"
	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/metrics"
	"github.com/rs/zerolog/log"
)

// CheckpointService snapshots and restores workspace file sets and keeps the
// short-lived undo buffer around reverts
type CheckpointService struct {
	store     domain.WorkspaceStore
	preRevert *tieredStateStore

	settleDelay        time.Duration
	messageDeleteDelay time.Duration
	preRevertTTL       time.Duration
	restoreMessages    bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	initMu sync.Mutex
	ready  bool
}

// NewCheckpointService creates a new checkpoint service. fallback may be nil,
// in which case pre-revert states live in memory only.
func NewCheckpointService(store domain.WorkspaceStore, fallback domain.KeyValueStore, cfg config.CheckpointConfig) *CheckpointService {
	var durable PreRevertStore
	if fallback != nil {
		durable = newFallbackStateStore(fallback)
	}

	return &CheckpointService{
		store:              store,
		preRevert:          newTieredStateStore(durable),
		settleDelay:        cfg.SettleDelay,
		messageDeleteDelay: cfg.MessageDeleteDelay,
		preRevertTTL:       cfg.PreRevertTTL,
		restoreMessages:    cfg.RestoreMessages,
		now:                time.Now,
		sleep:              sleepContext,
	}
}

func (s *CheckpointService) init(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.ready {
		return nil
	}
	if err := s.store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize workspace store: %w", err)
	}
	s.ready = true
	return nil
}

// CreateCheckpoint captures the workspace's complete file set for messageID
func (s *CheckpointService) CreateCheckpoint(ctx context.Context, workspaceID, messageID string) (*domain.Checkpoint, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	// Let a just-finished write land before reading
	if err := s.sleep(ctx, s.settleDelay); err != nil {
		return nil, err
	}

	files, err := s.store.GetFiles(ctx, workspaceID)
	if err != nil {
		log.Error().Err(err).Str("workspace_id", workspaceID).Str("message_id", messageID).Msg("Failed to read files for checkpoint")
		return nil, fmt.Errorf("failed to get files: %w", err)
	}

	snapshots := make([]domain.FileSnapshot, len(files))
	for i, f := range files {
		snapshots[i] = domain.SnapshotOf(f)
	}

	checkpoint, err := s.store.CreateCheckpoint(ctx, domain.CheckpointCreate{
		WorkspaceID: workspaceID,
		MessageID:   messageID,
		Files:       snapshots,
	})
	if err != nil {
		log.Error().Err(err).Str("workspace_id", workspaceID).Str("message_id", messageID).Msg("Failed to create checkpoint")
		return nil, fmt.Errorf("failed to create checkpoint: %w", err)
	}

	metrics.RecordCheckpointCreated(len(snapshots))
	log.Debug().
		Str("workspace_id", workspaceID).
		Str("message_id", messageID).
		Str("checkpoint_id", checkpoint.ID).
		Int("files", len(snapshots)).
		Msg("Checkpoint created")

	return checkpoint, nil
}

// RestoreCheckpoint replaces the workspace's files with the checkpoint's.
// It returns false when there was nothing to apply.
func (s *CheckpointService) RestoreCheckpoint(ctx context.Context, checkpointID string) (bool, error) {
	if err := s.init(ctx); err != nil {
		return false, err
	}

	applied, err := s.store.RestoreCheckpoint(ctx, checkpointID)
	if err != nil {
		metrics.RecordCheckpointRestore("error")
		log.Error().Err(err).Str("checkpoint_id", checkpointID).Msg("Failed to restore checkpoint")
		return false, fmt.Errorf("failed to restore checkpoint: %w", err)
	}

	if !applied {
		metrics.RecordCheckpointRestore("not_applied")
		log.Warn().Str("checkpoint_id", checkpointID).Msg("Checkpoint restore not applied")
		return false, nil
	}

	metrics.RecordCheckpointRestore("applied")
	return true, nil
}

// GetCheckpoint returns a checkpoint by ID, or nil
func (s *CheckpointService) GetCheckpoint(ctx context.Context, checkpointID string) (*domain.Checkpoint, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	checkpoint, err := s.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return checkpoint, nil
}

// GetCheckpoints lists a workspace's checkpoints
func (s *CheckpointService) GetCheckpoints(ctx context.Context, workspaceID string) ([]domain.Checkpoint, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	checkpoints, err := s.store.GetCheckpoints(ctx, workspaceID)
	if err != nil {
		log.Error().Err(err).Str("workspace_id", workspaceID).Msg("Failed to list checkpoints")
		return nil, fmt.Errorf("failed to get checkpoints: %w", err)
	}
	return checkpoints, nil
}

// DeleteMessagesAfter removes a session's messages created strictly after ts.
// Messages of the same session ID in other workspaces are untouched.
func (s *CheckpointService) DeleteMessagesAfter(ctx context.Context, workspaceID, chatSessionID string, ts time.Time) (int, error) {
	if err := s.init(ctx); err != nil {
		return 0, err
	}

	if err := s.sleep(ctx, s.messageDeleteDelay); err != nil {
		return 0, err
	}

	deleted, err := s.store.DeleteMessagesAfter(ctx, workspaceID, chatSessionID, ts)
	if err != nil {
		log.Error().Err(err).Str("workspace_id", workspaceID).Str("chat_session_id", chatSessionID).Msg("Failed to delete messages")
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	if err := s.sleep(ctx, s.messageDeleteDelay); err != nil {
		return deleted, err
	}

	return deleted, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
