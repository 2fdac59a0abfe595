package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/types"
)

// sessionState holds everything the memory store tracks per session.
type sessionState struct {
	session      Session
	messages     []types.Message
	agentContext map[string]any
	turnHolder   string
}

// MemoryStore is an in-memory implementation of Store.
// Suitable for embedding, development and tests. Data is lost on restart.
type MemoryStore struct {
	sessions map[string]*sessionState
	mu       sync.RWMutex
	closed   bool
	logger   *zap.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		sessions: make(map[string]*sessionState),
		logger:   logger.With(zap.String("component", "session_store")),
	}
}

// CreateSession registers a session under the given token. The first agent
// to join holds the turn.
func (s *MemoryStore) CreateSession(token, sessionID, userID, activeAgentID string) error {
	if token == "" || sessionID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.sessions[token] = &sessionState{
		session: Session{
			ID:            sessionID,
			UserID:        userID,
			ActiveAgentID: activeAgentID,
			StartedAt:     time.Now(),
		},
		agentContext: make(map[string]any),
		turnHolder:   activeAgentID,
	}
	return nil
}

// GetSession resolves a token to its session snapshot.
func (s *MemoryStore) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	state, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}

	snapshot := state.session
	snapshot.ActiveAgentID = state.turnHolder
	return &snapshot, nil
}

// GetRecentContext returns up to count most recent messages, oldest first.
func (s *MemoryStore) GetRecentContext(ctx context.Context, token string, count int) ([]types.Message, error) {
	if token == "" || count < 0 {
		return nil, ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	state, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}

	msgs := state.messages
	if count < len(msgs) {
		msgs = msgs[len(msgs)-count:]
	}

	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// ReleaseTurn releases the turn held by agentID. Releasing a turn the agent
// does not hold is a no-op.
func (s *MemoryStore) ReleaseTurn(ctx context.Context, token, agentID string) error {
	if token == "" || agentID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	state, ok := s.sessions[token]
	if !ok {
		return ErrNotFound
	}

	if state.turnHolder == agentID {
		state.turnHolder = ""
		s.logger.Debug("turn released",
			zap.String("session_id", state.session.ID),
			zap.String("agent_id", agentID))
	}
	return nil
}

// RequestTurn grants the turn to agentID. Fails with ErrTurnUnavailable if
// another agent currently holds it. Requesting an already-held turn is
// idempotent.
func (s *MemoryStore) RequestTurn(ctx context.Context, token, agentID string) error {
	if token == "" || agentID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	state, ok := s.sessions[token]
	if !ok {
		return ErrNotFound
	}

	if state.turnHolder != "" && state.turnHolder != agentID {
		return ErrTurnUnavailable
	}

	state.turnHolder = agentID
	state.session.ActiveAgentID = agentID
	s.logger.Debug("turn granted",
		zap.String("session_id", state.session.ID),
		zap.String("agent_id", agentID))
	return nil
}

// PropagateContext merges the update into the shared agent-context map.
func (s *MemoryStore) PropagateContext(ctx context.Context, token string, update map[string]any) error {
	if token == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	state, ok := s.sessions[token]
	if !ok {
		return ErrNotFound
	}

	for k, v := range update {
		state.agentContext[k] = v
	}
	return nil
}

// AddMessage appends a message to the session history. The role must be one
// of the types.Role constants.
func (s *MemoryStore) AddMessage(ctx context.Context, token, agentID string, role types.Role, content string) error {
	if token == "" || !role.Valid() {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	state, ok := s.sessions[token]
	if !ok {
		return ErrNotFound
	}

	msg := types.NewMessage(role, content)
	if role == types.RoleAssistant {
		msg = msg.WithAgentID(agentID)
	}
	state.messages = append(state.messages, msg)
	return nil
}

// AgentContext returns a copy of the shared agent-context map. Test and
// embedding helper, not part of the Store interface.
func (s *MemoryStore) AgentContext(token string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[token]
	if !ok {
		return nil, false
	}

	out := make(map[string]any, len(state.agentContext))
	for k, v := range state.agentContext {
		out[k] = v
	}
	return out, true
}

// TurnHolder reports which agent currently holds the turn, if any.
func (s *MemoryStore) TurnHolder(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[token]
	if !ok {
		return "", false
	}
	return state.turnHolder, true
}

// Close closes the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
