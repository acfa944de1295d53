package handler

import (
	"net/http"

	"github.com/Rrens/checkpoint-recovery/internal/api/middleware"
	"github.com/Rrens/checkpoint-recovery/internal/api/response"
	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/service"
	"github.com/go-chi/chi/v5"
)

// StreamHandler handles stream recovery endpoints
type StreamHandler struct {
	streams *service.StreamRecoveryService
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(streams *service.StreamRecoveryService) *StreamHandler {
	return &StreamHandler{streams: streams}
}

// authorize checks the caller may touch the stream in the URL. A missing
// stream passes so the operation itself can no-op.
func (h *StreamHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	streamID := chi.URLParam(r, "streamID")

	stream, err := h.streams.GetStream(r.Context(), streamID)
	if err != nil {
		response.InternalError(w, "failed to load stream")
		return "", false
	}
	if stream != nil && !middleware.CanAccess(r.Context(), stream.ProjectID) {
		response.Forbidden(w, "access denied")
		return "", false
	}
	return streamID, true
}

// Start registers a new stream
func (h *StreamHandler) Start(w http.ResponseWriter, r *http.Request) {
	var input domain.StreamStart
	if !decode(w, r, &input) {
		return
	}

	if !middleware.CanAccess(r.Context(), input.ProjectID) {
		response.Forbidden(w, "access denied")
		return
	}

	stream, err := h.streams.StartStream(r.Context(), input)
	if err != nil {
		response.InternalError(w, "failed to start stream")
		return
	}

	response.Created(w, stream)
}

// Update queues accumulated progress for a debounced write
func (h *StreamHandler) Update(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var progress domain.StreamProgress
	if !decode(w, r, &progress) {
		return
	}

	if err := h.streams.UpdateStreamProgress(r.Context(), streamID, progress); err != nil {
		response.InternalError(w, "failed to update stream")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Flush writes any queued progress now
func (h *StreamHandler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.streams.FlushPendingUpdate(r.Context()); err != nil {
		response.InternalError(w, "failed to flush stream")
		return
	}
	response.NoContent(w)
}

// Abort records a user cancellation
func (h *StreamHandler) Abort(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if err := h.streams.MarkUserAborted(r.Context(), streamID); err != nil {
		response.InternalError(w, "failed to abort stream")
		return
	}
	response.NoContent(w)
}

// Interrupt records an unexpected disruption
func (h *StreamHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var input domain.StreamInterrupt
	if !decode(w, r, &input) {
		return
	}

	if err := h.streams.MarkInterrupted(r.Context(), streamID, input.Reason); err != nil {
		response.InternalError(w, "failed to interrupt stream")
		return
	}
	response.NoContent(w)
}

// Recover records that the stream was resumed
func (h *StreamHandler) Recover(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if err := h.streams.MarkRecovered(r.Context(), streamID); err != nil {
		response.InternalError(w, "failed to recover stream")
		return
	}
	response.NoContent(w)
}

// Complete handles normal stream completion
func (h *StreamHandler) Complete(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if err := h.streams.CompleteStream(r.Context(), streamID); err != nil {
		response.InternalError(w, "failed to complete stream")
		return
	}
	response.NoContent(w)
}

// Dismiss deletes a stream the user chose not to recover
func (h *StreamHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if err := h.streams.DismissStream(r.Context(), streamID); err != nil {
		response.InternalError(w, "failed to dismiss stream")
		return
	}
	response.NoContent(w)
}

// Get returns one stream record
func (h *StreamHandler) Get(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")

	stream, err := h.streams.GetStream(r.Context(), streamID)
	if err != nil {
		response.InternalError(w, "failed to load stream")
		return
	}
	if stream == nil {
		response.NotFound(w, "stream not found")
		return
	}
	if !middleware.CanAccess(r.Context(), stream.ProjectID) {
		response.Forbidden(w, "access denied")
		return
	}

	response.OK(w, stream)
}

// ListInterrupted returns a project's recoverable streams
func (h *StreamHandler) ListInterrupted(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "workspaceID")

	streams, err := h.streams.GetInterruptedStreams(r.Context(), projectID)
	if err != nil {
		response.InternalError(w, "failed to list streams")
		return
	}

	response.OK(w, streams)
}

// ListForSession returns every stream of a chat session in the workspace
func (h *StreamHandler) ListForSession(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "workspaceID")
	sessionID := chi.URLParam(r, "sessionID")

	streams, err := h.streams.GetStreamsForSession(r.Context(), sessionID)
	if err != nil {
		response.InternalError(w, "failed to list streams")
		return
	}

	result := make([]domain.InterruptedStream, 0, len(streams))
	for _, s := range streams {
		if s.ProjectID == projectID {
			result = append(result, s)
		}
	}

	response.OK(w, result)
}
