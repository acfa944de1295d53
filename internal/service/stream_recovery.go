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

type pendingUpdate struct {
	StreamID string
	Progress domain.StreamProgress
}

// StreamRecoveryService tracks in-flight AI response streams so that a stream
// cut off by something other than the user can be offered for recovery later
type StreamRecoveryService struct {
	repo      domain.StreamRepository
	debouncer *Debouncer[pendingUpdate]

	staleAfter  time.Duration
	retention   time.Duration
	orphanAfter time.Duration
	now         func() time.Time

	// mu serializes hand-off of the single pending slot between streams
	mu sync.Mutex

	initMu sync.Mutex
	ready  bool
}

// NewStreamRecoveryService creates a new stream recovery service
func NewStreamRecoveryService(repo domain.StreamRepository, cfg config.StreamsConfig) *StreamRecoveryService {
	s := &StreamRecoveryService{
		repo:        repo,
		staleAfter:  cfg.StaleAfter,
		retention:   cfg.Retention,
		orphanAfter: cfg.OrphanAfter,
		now:         time.Now,
	}
	s.debouncer = NewDebouncer(cfg.DebounceDelay, s.writeProgress)
	return s
}

// Init opens the stream repository. It is safe to call repeatedly.
func (s *StreamRecoveryService) Init(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.ready {
		return nil
	}
	if err := s.repo.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize stream repository: %w", err)
	}
	s.ready = true
	return nil
}

// StartStream registers a new stream in the streaming state
func (s *StreamRecoveryService) StartStream(ctx context.Context, input domain.StreamStart) (*domain.InterruptedStream, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	stream := &domain.InterruptedStream{
		ID:                 input.StreamID,
		ProjectID:          input.ProjectID,
		ChatSessionID:      input.ChatSessionID,
		UserMessageID:      input.UserMessageID,
		UserMessageContent: input.UserMessageContent,
		ToolCalls:          []map[string]any{},
		InlineToolCalls:    []map[string]any{},
		Status:             domain.StreamStatusStreaming,
		StartedAt:          now,
		LastUpdatedAt:      now,
	}

	if err := s.repo.PutStream(ctx, stream); err != nil {
		log.Error().Err(err).Str("stream_id", input.StreamID).Msg("Failed to start stream")
		return nil, fmt.Errorf("failed to save stream: %w", err)
	}

	metrics.RecordStreamTransition(string(domain.StreamStatusStreaming))
	return stream, nil
}

// UpdateStreamProgress queues progress for a debounced write. Only the latest
// queued update is written. Progress pending for a different stream is
// written first.
func (s *StreamRecoveryService) UpdateStreamProgress(ctx context.Context, streamID string, progress domain.StreamProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.debouncer.Pending(); ok && cur.StreamID != streamID {
		if _, err := s.debouncer.Flush(ctx); err != nil {
			return err
		}
	}

	s.debouncer.Schedule(pendingUpdate{StreamID: streamID, Progress: progress})
	return nil
}

// FlushPendingUpdate writes the queued update now and cancels its timer
func (s *StreamRecoveryService) FlushPendingUpdate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.debouncer.Flush(ctx)
	return err
}

func (s *StreamRecoveryService) writeProgress(ctx context.Context, upd pendingUpdate) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	stream, err := s.repo.GetStream(ctx, upd.StreamID)
	if err != nil {
		log.Error().Err(err).Str("stream_id", upd.StreamID).Msg("Failed to load stream for progress write")
		return fmt.Errorf("failed to get stream: %w", err)
	}

	// Never resurrect or overwrite a stream that has left the streaming state
	if stream == nil || stream.Status != domain.StreamStatusStreaming {
		metrics.RecordStreamWrite("skipped")
		return nil
	}

	upd.Progress.Apply(stream)
	stream.LastUpdatedAt = s.now()

	if err := s.repo.PutStream(ctx, stream); err != nil {
		log.Error().Err(err).Str("stream_id", upd.StreamID).Msg("Failed to write stream progress")
		return fmt.Errorf("failed to save stream: %w", err)
	}

	metrics.RecordStreamWrite("written")
	return nil
}

// MarkUserAborted records that the user stopped the stream on purpose
func (s *StreamRecoveryService) MarkUserAborted(ctx context.Context, streamID string) error {
	return s.transition(ctx, streamID, func(stream *domain.InterruptedStream) bool {
		stream.Status = domain.StreamStatusUserAborted
		return true
	})
}

// MarkInterrupted records an unexpected disruption. Only a streaming record
// can be interrupted.
func (s *StreamRecoveryService) MarkInterrupted(ctx context.Context, streamID string, reason domain.InterruptReason) error {
	if !reason.Valid() {
		reason = domain.InterruptUnknown
	}

	return s.transition(ctx, streamID, func(stream *domain.InterruptedStream) bool {
		if stream.Status != domain.StreamStatusStreaming {
			return false
		}
		at := s.now()
		stream.Status = domain.StreamStatusInterrupted
		stream.InterruptedAt = &at
		stream.InterruptReason = &reason
		return true
	})
}

// MarkRecovered records that the UI resumed the stream. User-aborted
// streams are never offered for recovery and stay as they are.
func (s *StreamRecoveryService) MarkRecovered(ctx context.Context, streamID string) error {
	return s.transition(ctx, streamID, func(stream *domain.InterruptedStream) bool {
		if stream.Status == domain.StreamStatusUserAborted {
			return false
		}
		stream.Status = domain.StreamStatusRecovered
		return true
	})
}

// transition flushes any pending update, then applies mutate to the stored
// record. Missing records and mutate returning false are no-ops.
func (s *StreamRecoveryService) transition(ctx context.Context, streamID string, mutate func(*domain.InterruptedStream) bool) error {
	if err := s.FlushPendingUpdate(ctx); err != nil {
		return err
	}
	if err := s.Init(ctx); err != nil {
		return err
	}

	stream, err := s.repo.GetStream(ctx, streamID)
	if err != nil {
		return fmt.Errorf("failed to get stream: %w", err)
	}
	if stream == nil || !mutate(stream) {
		return nil
	}

	stream.LastUpdatedAt = s.now()
	if err := s.repo.PutStream(ctx, stream); err != nil {
		log.Error().Err(err).Str("stream_id", streamID).Str("status", string(stream.Status)).Msg("Failed to update stream status")
		return fmt.Errorf("failed to save stream: %w", err)
	}

	metrics.RecordStreamTransition(string(stream.Status))
	return nil
}

// CompleteStream writes any pending update, then deletes the record
func (s *StreamRecoveryService) CompleteStream(ctx context.Context, streamID string) error {
	if err := s.FlushPendingUpdate(ctx); err != nil {
		return err
	}
	return s.DismissStream(ctx, streamID)
}

// DismissStream deletes the record regardless of its status
func (s *StreamRecoveryService) DismissStream(ctx context.Context, streamID string) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	if err := s.repo.DeleteStream(ctx, streamID); err != nil {
		log.Error().Err(err).Str("stream_id", streamID).Msg("Failed to delete stream")
		return fmt.Errorf("failed to delete stream: %w", err)
	}
	return nil
}

// GetStream returns the record for streamID, or nil
func (s *StreamRecoveryService) GetStream(ctx context.Context, streamID string) (*domain.InterruptedStream, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	stream, err := s.repo.GetStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	return stream, nil
}

// GetInterruptedStreams returns the project's recoverable streams: those
// still streaming or interrupted and updated within the stale window
func (s *StreamRecoveryService) GetInterruptedStreams(ctx context.Context, projectID string) ([]domain.InterruptedStream, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	streams, err := s.repo.ListStreamsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	cutoff := s.now().Add(-s.staleAfter)
	result := make([]domain.InterruptedStream, 0, len(streams))
	for _, stream := range streams {
		if stream.Status != domain.StreamStatusInterrupted && stream.Status != domain.StreamStatusStreaming {
			continue
		}
		if stream.LastUpdatedAt.Before(cutoff) {
			continue
		}
		result = append(result, stream)
	}

	return result, nil
}

// GetStreamsForSession returns every record of a chat session
func (s *StreamRecoveryService) GetStreamsForSession(ctx context.Context, chatSessionID string) ([]domain.InterruptedStream, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	streams, err := s.repo.ListStreamsBySession(ctx, chatSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	return streams, nil
}

// CleanupOldStreams deletes records of any status not updated within the
// retention window
func (s *StreamRecoveryService) CleanupOldStreams(ctx context.Context) (int, error) {
	if err := s.Init(ctx); err != nil {
		return 0, err
	}

	deleted, err := s.repo.DeleteStreamsUpdatedBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up old streams")
		return 0, fmt.Errorf("failed to delete old streams: %w", err)
	}

	if deleted > 0 {
		metrics.RecordStreamsSwept(deleted)
		log.Info().Int("count", deleted).Msg("Old streams cleaned up")
	}
	return deleted, nil
}

// InterruptStaleStreams marks streams that stopped receiving progress
// without reaching a terminal state as interrupted with an unknown reason.
// It is a no-op when no orphan window is configured.
func (s *StreamRecoveryService) InterruptStaleStreams(ctx context.Context) (int, error) {
	if s.orphanAfter <= 0 {
		return 0, nil
	}
	if err := s.Init(ctx); err != nil {
		return 0, err
	}

	streams, err := s.repo.ListStreamsByStatus(ctx, domain.StreamStatusStreaming)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list streaming records")
		return 0, fmt.Errorf("failed to list streams: %w", err)
	}

	cutoff := s.now().Add(-s.orphanAfter)
	reason := domain.InterruptUnknown
	interrupted := 0
	for _, candidate := range streams {
		if !candidate.LastUpdatedAt.Before(cutoff) {
			continue
		}

		changed := false
		err := s.transition(ctx, candidate.ID, func(stream *domain.InterruptedStream) bool {
			// Progress may have landed since the listing
			if stream.Status != domain.StreamStatusStreaming || !stream.LastUpdatedAt.Before(cutoff) {
				return false
			}
			at := s.now()
			stream.Status = domain.StreamStatusInterrupted
			stream.InterruptedAt = &at
			stream.InterruptReason = &reason
			changed = true
			return true
		})
		if err != nil {
			return interrupted, err
		}
		if changed {
			interrupted++
		}
	}

	if interrupted > 0 {
		log.Info().Int("count", interrupted).Msg("Orphaned streams marked interrupted")
	}
	return interrupted, nil
}

// Close writes any pending update and stops the debounce timer
func (s *StreamRecoveryService) Close(ctx context.Context) error {
	err := s.FlushPendingUpdate(ctx)
	s.debouncer.Stop()
	return err
}
