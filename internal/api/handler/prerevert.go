package handler

import (
	"errors"
	"net/http"

	"github.com/Rrens/checkpoint-recovery/internal/api/middleware"
	"github.com/Rrens/checkpoint-recovery/internal/api/response"
	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/service"
	"github.com/go-chi/chi/v5"
)

// PreRevertHandler handles the undo buffer around reverts
type PreRevertHandler struct {
	checkpoints *service.CheckpointService
}

// NewPreRevertHandler creates a new pre-revert handler
func NewPreRevertHandler(checkpoints *service.CheckpointService) *PreRevertHandler {
	return &PreRevertHandler{checkpoints: checkpoints}
}

// Capture snapshots the workspace before a revert
func (h *PreRevertHandler) Capture(w http.ResponseWriter, r *http.Request) {
	workspaceID, _ := middleware.GetWorkspaceID(r.Context())

	var input domain.PreRevertRequest
	if !decode(w, r, &input) {
		return
	}

	if err := h.checkpoints.CapturePreRevertState(r.Context(), workspaceID, input.ChatSessionID, input.MessageID); err != nil {
		response.InternalError(w, "failed to capture workspace state")
		return
	}

	response.Created(w, map[string]string{"message_id": input.MessageID})
}

// Restore undoes a revert
func (h *PreRevertHandler) Restore(w http.ResponseWriter, r *http.Request) {
	workspaceID, _ := middleware.GetWorkspaceID(r.Context())

	var input domain.PreRevertRequest
	if !decode(w, r, &input) {
		return
	}

	_, err := h.checkpoints.RestorePreRevertState(r.Context(), workspaceID, input.ChatSessionID, input.MessageID)
	switch {
	case errors.Is(err, domain.ErrNoPreRevertState):
		response.NotFound(w, "nothing to undo")
		return
	case errors.Is(err, domain.ErrRestoreExpired):
		response.Gone(w, "too late to undo")
		return
	case err != nil:
		response.InternalError(w, "failed to undo revert")
		return
	}

	response.OK(w, map[string]bool{"restored": true})
}

// Available reports whether a revert at the given message can still be undone
func (h *PreRevertHandler) Available(w http.ResponseWriter, r *http.Request) {
	workspaceID, _ := middleware.GetWorkspaceID(r.Context())
	messageID := chi.URLParam(r, "messageID")

	response.OK(w, map[string]bool{
		"available": h.checkpoints.IsRestoreAvailableForMessage(r.Context(), workspaceID, messageID),
	})
}

// Clear drops every pre-revert state of the workspace
func (h *PreRevertHandler) Clear(w http.ResponseWriter, r *http.Request) {
	workspaceID, _ := middleware.GetWorkspaceID(r.Context())

	h.checkpoints.ClearAllPreRevertStates(r.Context(), workspaceID)
	response.NoContent(w)
}

// Load rehydrates the workspace's pre-revert states from durable storage
func (h *PreRevertHandler) Load(w http.ResponseWriter, r *http.Request) {
	workspaceID, _ := middleware.GetWorkspaceID(r.Context())

	loaded := h.checkpoints.LoadPreRevertStatesFromStorage(r.Context(), workspaceID)
	response.OK(w, map[string]int{"loaded": loaded})
}
