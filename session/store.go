package session

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/agentrelay/types"
)

// Common store errors.
var (
	// ErrNotFound indicates the session token does not resolve.
	ErrNotFound = errors.New("session: not found")

	// ErrTurnUnavailable indicates the conversational turn is held by another agent.
	ErrTurnUnavailable = errors.New("session: turn unavailable")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("session: store closed")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.New("session: invalid input")
)

// Session is the identity snapshot of one multi-agent conversation.
type Session struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	ActiveAgentID string         `json:"active_agent_id,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Store is the turn-taking session boundary consumed by the handoff
// protocol. Implementations live outside this module; MemoryStore is a
// reference implementation for embedding and tests.
type Store interface {
	// GetSession resolves a session token to its identity snapshot.
	GetSession(ctx context.Context, token string) (*Session, error)

	// GetRecentContext returns up to count most recent messages, oldest first.
	GetRecentContext(ctx context.Context, token string, count int) ([]types.Message, error)

	// ReleaseTurn releases the conversational turn held by agentID.
	ReleaseTurn(ctx context.Context, token, agentID string) error

	// RequestTurn grants the conversational turn to agentID if it is free.
	RequestTurn(ctx context.Context, token, agentID string) error

	// PropagateContext merges an update into the session's shared
	// agent-context map. Existing keys are overwritten.
	PropagateContext(ctx context.Context, token string, update map[string]any) error

	// AddMessage appends a message to the session history.
	AddMessage(ctx context.Context, token, agentID string, role types.Role, content string) error
}
