package handler

import (
	"net/http"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/api/middleware"
	"github.com/Rrens/checkpoint-recovery/internal/api/response"
	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/Rrens/checkpoint-recovery/internal/service"
	"github.com/go-chi/chi/v5"
)

const msgRevertFailed = "could not revert, your files were not changed"

// CheckpointHandler handles checkpoint and chat history endpoints
type CheckpointHandler struct {
	checkpoints *service.CheckpointService
}

// NewCheckpointHandler creates a new checkpoint handler
func NewCheckpointHandler(checkpoints *service.CheckpointService) *CheckpointHandler {
	return &CheckpointHandler{checkpoints: checkpoints}
}

// Create handles checkpoint creation for the workspace in the URL
func (h *CheckpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := middleware.GetWorkspaceID(r.Context())
	if !ok {
		response.BadRequest(w, "missing workspace ID")
		return
	}

	var input domain.CheckpointRequest
	if !decode(w, r, &input) {
		return
	}

	checkpoint, err := h.checkpoints.CreateCheckpoint(r.Context(), workspaceID, input.MessageID)
	if err != nil {
		response.InternalError(w, "failed to create checkpoint")
		return
	}

	response.Created(w, checkpoint)
}

// List handles listing a workspace's checkpoints
func (h *CheckpointHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := middleware.GetWorkspaceID(r.Context())
	if !ok {
		response.BadRequest(w, "missing workspace ID")
		return
	}

	checkpoints, err := h.checkpoints.GetCheckpoints(r.Context(), workspaceID)
	if err != nil {
		response.InternalError(w, "failed to list checkpoints")
		return
	}

	response.OK(w, checkpoints)
}

// Restore handles reverting a workspace to a checkpoint
func (h *CheckpointHandler) Restore(w http.ResponseWriter, r *http.Request) {
	checkpointID := chi.URLParam(r, "checkpointID")

	checkpoint, err := h.checkpoints.GetCheckpoint(r.Context(), checkpointID)
	if err != nil {
		response.InternalError(w, msgRevertFailed)
		return
	}
	if checkpoint != nil && !middleware.CanAccess(r.Context(), checkpoint.WorkspaceID) {
		response.Forbidden(w, "access denied")
		return
	}

	applied, err := h.checkpoints.RestoreCheckpoint(r.Context(), checkpointID)
	if err != nil {
		response.InternalError(w, msgRevertFailed)
		return
	}
	if !applied {
		response.Conflict(w, msgRevertFailed)
		return
	}

	response.OK(w, map[string]any{
		"restored":      true,
		"checkpoint_id": checkpointID,
	})
}

// DeleteMessagesAfter handles truncating a chat session after a timestamp
func (h *CheckpointHandler) DeleteMessagesAfter(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := middleware.GetWorkspaceID(r.Context())
	if !ok {
		response.BadRequest(w, "missing workspace ID")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	after, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("after"))
	if err != nil {
		response.BadRequest(w, "after must be an RFC 3339 timestamp")
		return
	}

	deleted, err := h.checkpoints.DeleteMessagesAfter(r.Context(), workspaceID, sessionID, after)
	if err != nil {
		response.InternalError(w, "failed to delete messages")
		return
	}

	response.OK(w, map[string]int{"deleted": deleted})
}
