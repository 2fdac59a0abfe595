// Package handoff implements the cross-agent handoff protocol: transfer of
// conversational control and context between agent processes in a
// multi-agent session, with verified persistence of the carried context.
package handoff

import (
	"time"

	"github.com/BaSui01/agentrelay/types"
)

// HandoffStatus represents the status of a handoff request.
type HandoffStatus string

const (
	StatusInitiated  HandoffStatus = "initiated"
	StatusInProgress HandoffStatus = "in_progress"
	StatusCompleted  HandoffStatus = "completed"
	StatusFailed     HandoffStatus = "failed"
	StatusCancelled  HandoffStatus = "cancelled"
)

// IsTerminal returns true if the status is a terminal state. Terminal
// requests reject any further status mutation.
func (s HandoffStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Priority represents the urgency of a handoff request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether the priority is one of the known constants.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// HandoffContext is the value object snapshotted once per handoff attempt.
// It is never mutated after creation; the persister only derives additional
// fields from it.
type HandoffContext struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	// ConversationWindow holds the last K messages at snapshot time,
	// oldest first.
	ConversationWindow []types.Message `json:"conversation_window"`

	// AgentSpecificData is populated by the source-agent enrichment step.
	AgentSpecificData map[string]any `json:"agent_specific_data,omitempty"`

	// MemoryReferences are opaque identifiers into the durable memory
	// store. Carried, never dereferenced.
	MemoryReferences []string `json:"memory_references,omitempty"`

	// Tags is the full tag set: caller-supplied original tags plus
	// pair-derived tags. Preserved byte-for-byte through persistence.
	Tags []string `json:"tags,omitempty"`

	// OriginalTags is the caller-supplied subset of Tags, tracked
	// separately so the preservation checksum covers exactly what the
	// requester asked to preserve.
	OriginalTags []string `json:"original_tags,omitempty"`

	// DerivedTags is the enrichment-appended subset of Tags.
	DerivedTags []string `json:"derived_tags,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// HandoffRequest is the mutable record tracked for the lifetime of one
// transfer. Status moves monotonically; terminal states are immutable.
type HandoffRequest struct {
	HandoffID     string          `json:"handoff_id"`
	SourceAgentID string          `json:"source_agent_id"`
	TargetAgentID string          `json:"target_agent_id"`
	SessionToken  string          `json:"session_token"`
	Context       *HandoffContext `json:"context"`
	Reason        string          `json:"reason,omitempty"`
	Priority      Priority        `json:"priority"`
	Status        HandoffStatus   `json:"status"`

	// DurableContext is true once the bundle has been persisted and
	// verified. False on a completed request marks degraded persistence.
	DurableContext bool `json:"durable_context"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// Clone returns a deep-enough copy for read access: scalar fields are
// copied, the context pointer is shared since contexts are immutable after
// creation.
func (r *HandoffRequest) Clone() *HandoffRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.CompletionTime != nil {
		t := *r.CompletionTime
		out.CompletionTime = &t
	}
	return &out
}

// Summary is the read-model row returned by list operations.
type Summary struct {
	HandoffID     string        `json:"handoff_id"`
	SessionID     string        `json:"session_id"`
	SourceAgentID string        `json:"source_agent_id"`
	TargetAgentID string        `json:"target_agent_id"`
	Status        HandoffStatus `json:"status"`
	Priority      Priority      `json:"priority"`
	Reason        string        `json:"reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// summarize builds the read-model row for a request.
func summarize(r *HandoffRequest) Summary {
	s := Summary{
		HandoffID:     r.HandoffID,
		SourceAgentID: r.SourceAgentID,
		TargetAgentID: r.TargetAgentID,
		Status:        r.Status,
		Priority:      r.Priority,
		Reason:        r.Reason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		ErrorMessage:  r.ErrorMessage,
	}
	if r.Context != nil {
		s.SessionID = r.Context.SessionID
	}
	return s
}

// Event is a handoff lifecycle notification delivered to subscribers.
type Event struct {
	HandoffID     string        `json:"handoff_id"`
	SessionID     string        `json:"session_id"`
	SourceAgentID string        `json:"source_agent_id"`
	TargetAgentID string        `json:"target_agent_id"`
	Status        HandoffStatus `json:"status"`
	Priority      Priority      `json:"priority"`
	Timestamp     time.Time     `json:"timestamp"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}
