package handoff

import (
	"context"
	"time"

	"github.com/BaSui01/agentrelay/session"
	"github.com/BaSui01/agentrelay/types"
	"github.com/BaSui01/agentrelay/vault"
)

// mockSessionStore implements session.Store with per-call overrides for
// failure injection.
type mockSessionStore struct {
	getSessionFn  func(ctx context.Context, token string) (*session.Session, error)
	getRecentFn   func(ctx context.Context, token string, count int) ([]types.Message, error)
	releaseTurnFn func(ctx context.Context, token, agentID string) error
	requestTurnFn func(ctx context.Context, token, agentID string) error
	propagateFn   func(ctx context.Context, token string, update map[string]any) error
	addMessageFn  func(ctx context.Context, token, agentID string, role types.Role, content string) error
}

func (m *mockSessionStore) GetSession(ctx context.Context, token string) (*session.Session, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, token)
	}
	return &session.Session{ID: "sess-1", UserID: "user-1", StartedAt: time.Now()}, nil
}

func (m *mockSessionStore) GetRecentContext(ctx context.Context, token string, count int) ([]types.Message, error) {
	if m.getRecentFn != nil {
		return m.getRecentFn(ctx, token, count)
	}
	return nil, nil
}

func (m *mockSessionStore) ReleaseTurn(ctx context.Context, token, agentID string) error {
	if m.releaseTurnFn != nil {
		return m.releaseTurnFn(ctx, token, agentID)
	}
	return nil
}

func (m *mockSessionStore) RequestTurn(ctx context.Context, token, agentID string) error {
	if m.requestTurnFn != nil {
		return m.requestTurnFn(ctx, token, agentID)
	}
	return nil
}

func (m *mockSessionStore) PropagateContext(ctx context.Context, token string, update map[string]any) error {
	if m.propagateFn != nil {
		return m.propagateFn(ctx, token, update)
	}
	return nil
}

func (m *mockSessionStore) AddMessage(ctx context.Context, token, agentID string, role types.Role, content string) error {
	if m.addMessageFn != nil {
		return m.addMessageFn(ctx, token, agentID, role, content)
	}
	return nil
}

var _ session.Store = (*mockSessionStore)(nil)

// flakyVault wraps a vault with injectable store/retrieve failures and an
// optional read-side tamper hook.
type flakyVault struct {
	inner       vault.Vault
	storeErr    error
	retrieveErr error
	tamper      func([]byte) []byte
}

func newFlakyVault() *flakyVault {
	return &flakyVault{inner: vault.NewMemoryVault()}
}

func (v *flakyVault) Store(ctx context.Context, path string, content []byte, metadata map[string]string) error {
	if v.storeErr != nil {
		return v.storeErr
	}
	return v.inner.Store(ctx, path, content, metadata)
}

func (v *flakyVault) Retrieve(ctx context.Context, path string) ([]byte, error) {
	if v.retrieveErr != nil {
		return nil, v.retrieveErr
	}
	raw, err := v.inner.Retrieve(ctx, path)
	if err != nil {
		return nil, err
	}
	if v.tamper != nil {
		return v.tamper(raw), nil
	}
	return raw, nil
}

func (v *flakyVault) Ping(ctx context.Context) error { return v.inner.Ping(ctx) }

func (v *flakyVault) Close() error { return v.inner.Close() }

var _ vault.Vault = (*flakyVault)(nil)

// windowOf builds n messages with increasing timestamps.
func windowOf(n int) []types.Message {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	msgs := make([]types.Message, 0, n)
	for i := 0; i < n; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		msgs = append(msgs, types.NewMessage(role, "message").WithTimestamp(base.Add(time.Duration(i)*time.Second)))
	}
	return msgs
}
