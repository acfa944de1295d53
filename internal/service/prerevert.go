package service

import (
	"context"
	"fmt"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/metrics"
	"github.com/rs/zerolog/log"
)

// CapturePreRevertState snapshots the workspace's files and the session's
// messages so the revert that follows can be undone
func (s *CheckpointService) CapturePreRevertState(ctx context.Context, workspaceID, chatSessionID, messageID string) error {
	if err := s.init(ctx); err != nil {
		return err
	}

	files, err := s.store.GetFiles(ctx, workspaceID)
	if err != nil {
		log.Error().Err(err).Str("workspace_id", workspaceID).Msg("Failed to read files for pre-revert state")
		return fmt.Errorf("failed to get files: %w", err)
	}

	var messages []domain.Message
	if chatSessionID != "" {
		messages, err = s.store.GetMessages(ctx, workspaceID, chatSessionID)
		if err != nil {
			log.Error().Err(err).Str("chat_session_id", chatSessionID).Msg("Failed to read messages for pre-revert state")
			return fmt.Errorf("failed to get messages: %w", err)
		}
	}

	state := &domain.PreRevertState{
		WorkspaceID:   workspaceID,
		ChatSessionID: chatSessionID,
		Files:         files,
		Messages:      messages,
		Timestamp:     s.now(),
	}

	return s.preRevert.Set(ctx, preRevertKey(workspaceID, messageID), state)
}

// RestorePreRevertState puts back the files captured before a revert and
// consumes the snapshot. It fails with domain.ErrNoPreRevertState when there
// is nothing to undo and domain.ErrRestoreExpired once the window has passed.
// Messages are only ever written back to the session they were captured
// from; a chatSessionID naming a different session leaves both untouched.
func (s *CheckpointService) RestorePreRevertState(ctx context.Context, workspaceID, chatSessionID, messageID string) (bool, error) {
	if err := s.init(ctx); err != nil {
		return false, err
	}

	key := preRevertKey(workspaceID, messageID)
	state, _ := s.preRevert.Get(ctx, key)
	if state == nil {
		metrics.RecordPreRevertRestore("none")
		return false, domain.ErrNoPreRevertState
	}

	if s.expired(state) {
		_ = s.preRevert.Delete(ctx, key)
		metrics.RecordPreRevertRestore("expired")
		return false, domain.ErrRestoreExpired
	}

	if err := s.replaceFiles(ctx, workspaceID, state.Files); err != nil {
		metrics.RecordPreRevertRestore("error")
		log.Error().Err(err).Str("workspace_id", workspaceID).Str("message_id", messageID).Msg("Failed to restore pre-revert files")
		return false, err
	}

	if session := state.ChatSessionID; s.restoreMessages && session != "" {
		if chatSessionID != "" && chatSessionID != session {
			log.Warn().
				Str("workspace_id", workspaceID).
				Str("captured_session_id", session).
				Str("chat_session_id", chatSessionID).
				Msg("Pre-revert state belongs to another session, messages not restored")
		} else if err := s.store.ReplaceMessages(ctx, workspaceID, session, state.Messages); err != nil {
			metrics.RecordPreRevertRestore("error")
			log.Error().Err(err).Str("chat_session_id", session).Msg("Failed to restore pre-revert messages")
			return false, fmt.Errorf("failed to restore messages: %w", err)
		}
	}

	_ = s.preRevert.Delete(ctx, key)
	metrics.RecordPreRevertRestore("restored")

	log.Info().
		Str("workspace_id", workspaceID).
		Str("message_id", messageID).
		Int("files", len(state.Files)).
		Msg("Pre-revert state restored")

	return true, nil
}

func (s *CheckpointService) replaceFiles(ctx context.Context, workspaceID string, files []domain.File) error {
	current, err := s.store.GetFiles(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to get files: %w", err)
	}

	for _, f := range current {
		if err := s.store.DeleteFile(ctx, workspaceID, f.Path); err != nil {
			return fmt.Errorf("failed to delete file %s: %w", f.Path, err)
		}
	}

	for _, f := range files {
		existing, err := s.store.GetFile(ctx, workspaceID, f.Path)
		if err != nil {
			return fmt.Errorf("failed to get file %s: %w", f.Path, err)
		}

		if existing != nil {
			update := domain.FileUpdate{
				Name:        &f.Name,
				Content:     &f.Content,
				FileType:    &f.FileType,
				Size:        &f.Size,
				IsDirectory: &f.IsDirectory,
			}
			if err := s.store.UpdateFile(ctx, workspaceID, f.Path, update); err != nil {
				return fmt.Errorf("failed to update file %s: %w", f.Path, err)
			}
			continue
		}

		file := f
		file.WorkspaceID = workspaceID
		if err := s.store.CreateFile(ctx, &file); err != nil {
			return fmt.Errorf("failed to create file %s: %w", f.Path, err)
		}
	}

	return nil
}

// IsRestoreAvailableForMessage reports whether an unexpired snapshot exists.
// It never modifies either tier.
func (s *CheckpointService) IsRestoreAvailableForMessage(ctx context.Context, workspaceID, messageID string) bool {
	state := s.preRevert.Peek(ctx, preRevertKey(workspaceID, messageID))
	return state != nil && !s.expired(state)
}

// ClearAllPreRevertStates drops every snapshot held for the workspace
func (s *CheckpointService) ClearAllPreRevertStates(ctx context.Context, workspaceID string) {
	keys, _ := s.preRevert.ListKeys(ctx, preRevertScope(workspaceID))

	// The scope is a key prefix, so it also matches workspaces whose ID
	// extends this one
	cleared := 0
	for _, key := range keys {
		if state := s.preRevert.Peek(ctx, key); state != nil && !state.OwnedBy(workspaceID) {
			continue
		}
		_ = s.preRevert.Delete(ctx, key)
		cleared++
	}

	if cleared > 0 {
		log.Debug().Str("workspace_id", workspaceID).Int("count", cleared).Msg("Pre-revert states cleared")
	}
}

// LoadPreRevertStatesFromStorage copies the workspace's unexpired durable
// snapshots into memory and deletes expired ones. It returns how many were loaded.
func (s *CheckpointService) LoadPreRevertStatesFromStorage(ctx context.Context, workspaceID string) int {
	tiers := s.preRevert
	if tiers.fallback == nil {
		return 0
	}

	loaded := 0
	for _, key := range tiers.fallbackKeys(ctx, preRevertScope(workspaceID)) {
		state, err := tiers.fallback.Get(ctx, key)
		if err != nil {
			metrics.RecordFallbackError("get")
			log.Warn().Err(err).Str("key", key).Msg("Failed to read pre-revert state from fallback")
			continue
		}
		if state == nil || !state.OwnedBy(workspaceID) {
			continue
		}

		if s.expired(state) {
			tiers.deleteFallback(ctx, key)
			continue
		}

		_ = tiers.memory.Set(ctx, key, state)
		loaded++
	}

	return loaded
}

// expired treats an age of exactly the TTL as expired
func (s *CheckpointService) expired(state *domain.PreRevertState) bool {
	return s.now().Sub(state.Timestamp) >= s.preRevertTTL
}
