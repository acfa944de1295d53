package domain

import (
	"context"
	"encoding/json"
	"time"
)

// StreamStatus represents the lifecycle state of a tracked AI response stream
type StreamStatus string

const (
	StreamStatusStreaming   StreamStatus = "streaming"
	StreamStatusUserAborted StreamStatus = "user_aborted"
	StreamStatusInterrupted StreamStatus = "interrupted"
	StreamStatusRecovered   StreamStatus = "recovered"
)

// InterruptReason describes why a stream stopped without user intent
type InterruptReason string

const (
	InterruptTabHidden    InterruptReason = "tab_hidden"
	InterruptPageUnload   InterruptReason = "page_unload"
	InterruptNetworkError InterruptReason = "network_error"
	InterruptUnknown      InterruptReason = "unknown"
)

// Valid reports whether r is a known interrupt reason
func (r InterruptReason) Valid() bool {
	switch r {
	case InterruptTabHidden, InterruptPageUnload, InterruptNetworkError, InterruptUnknown:
		return true
	}
	return false
}

// InterruptedStream is the durable record of an in-flight AI response.
// ID equals the assistant message id being streamed.
type InterruptedStream struct {
	ID                   string           `json:"id"`
	ProjectID            string           `json:"project_id"`
	ChatSessionID        string           `json:"chat_session_id"`
	UserMessageID        string           `json:"user_message_id"`
	UserMessageContent   string           `json:"user_message_content"`
	AccumulatedContent   string           `json:"accumulated_content"`
	AccumulatedReasoning string           `json:"accumulated_reasoning"`
	ToolCalls            []map[string]any `json:"tool_calls"`
	InlineToolCalls      []map[string]any `json:"inline_tool_calls"`
	ContinuationState    json.RawMessage  `json:"continuation_state,omitempty"`
	Status               StreamStatus     `json:"status"`
	StartedAt            time.Time        `json:"started_at"`
	LastUpdatedAt        time.Time        `json:"last_updated_at"`
	InterruptedAt        *time.Time       `json:"interrupted_at,omitempty"`
	InterruptReason      *InterruptReason `json:"interrupt_reason,omitempty"`
}

// StreamStart represents stream registration data
type StreamStart struct {
	StreamID           string `json:"stream_id" validate:"required,max=255"`
	ProjectID          string `json:"project_id" validate:"required,max=255"`
	ChatSessionID      string `json:"chat_session_id" validate:"required,max=255"`
	UserMessageID      string `json:"user_message_id" validate:"required,max=255"`
	UserMessageContent string `json:"user_message_content"`
}

// StreamProgress is a partial update; each set field carries the full
// accumulated value, not a delta
type StreamProgress struct {
	AccumulatedContent   *string          `json:"accumulated_content,omitempty"`
	AccumulatedReasoning *string          `json:"accumulated_reasoning,omitempty"`
	ToolCalls            []map[string]any `json:"tool_calls,omitempty"`
	InlineToolCalls      []map[string]any `json:"inline_tool_calls,omitempty"`
	ContinuationState    json.RawMessage  `json:"continuation_state,omitempty"`
}

// Apply copies the set fields of p onto s
func (p StreamProgress) Apply(s *InterruptedStream) {
	if p.AccumulatedContent != nil {
		s.AccumulatedContent = *p.AccumulatedContent
	}
	if p.AccumulatedReasoning != nil {
		s.AccumulatedReasoning = *p.AccumulatedReasoning
	}
	if p.ToolCalls != nil {
		s.ToolCalls = p.ToolCalls
	}
	if p.InlineToolCalls != nil {
		s.InlineToolCalls = p.InlineToolCalls
	}
	if p.ContinuationState != nil {
		s.ContinuationState = p.ContinuationState
	}
}

// StreamRepository defines the interface for interrupted stream storage
type StreamRepository interface {
	Init(ctx context.Context) error
	GetStream(ctx context.Context, id string) (*InterruptedStream, error)
	PutStream(ctx context.Context, stream *InterruptedStream) error
	DeleteStream(ctx context.Context, id string) error
	ListStreamsByProject(ctx context.Context, projectID string) ([]InterruptedStream, error)
	ListStreamsBySession(ctx context.Context, chatSessionID string) ([]InterruptedStream, error)
	ListStreamsByStatus(ctx context.Context, status StreamStatus) ([]InterruptedStream, error)
	// DeleteStreamsUpdatedBefore removes records whose LastUpdatedAt is before cutoff
	DeleteStreamsUpdatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// StreamInterrupt represents an interruption report
type StreamInterrupt struct {
	Reason InterruptReason `json:"reason" validate:"omitempty,oneof=tab_hidden page_unload network_error unknown"`
}
