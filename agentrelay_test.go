package agentrelay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrelay/handoff"
	"github.com/BaSui01/agentrelay/session"
	"github.com/BaSui01/agentrelay/types"
)

func testCapabilities() []handoff.Capability {
	return []handoff.Capability{
		{AgentID: "companion", DisplayName: "Companion", CanInitiate: true, AcceptsHandoffs: true},
		{AgentID: "analyst", DisplayName: "Analyst", CanInitiate: false, AcceptsHandoffs: true},
	}
}

func TestNewRequiresCapabilities(t *testing.T) {
	orch, err := New(WithLogger(zaptest.NewLogger(t)))
	require.Error(t, err)
	assert.Nil(t, orch)
	assert.Contains(t, err.Error(), "capability is required")
}

func TestNewCapabilitiesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`agents:
  - agent_id: companion
    display_name: Companion
    can_initiate: true
    accepts_handoffs: true
  - agent_id: analyst
    display_name: Analyst
    accepts_handoffs: true
`), 0o600))

	orch, err := New(
		WithCapabilitiesFile(path),
		WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	defer orch.Close()
	assert.Equal(t, []string{"analyst", "companion"}, orch.Registry().Agents())
}

func TestNewCapabilitiesFileMissing(t *testing.T) {
	_, err := New(WithCapabilitiesFile(filepath.Join(t.TempDir(), "nope.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load capabilities from")
}

func TestNewDefaultsCompleteHandoff(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := session.NewMemoryStore(logger)
	require.NoError(t, store.CreateSession("tok-1", "sess-1", "user-1", "companion"))
	ctx := context.Background()
	require.NoError(t, store.AddMessage(ctx, "tok-1", "", types.RoleUser, "I keep waking up at 3am"))
	require.NoError(t, store.AddMessage(ctx, "tok-1", "companion", types.RoleAssistant, "let's look at your sleep log"))

	orch, err := New(
		WithCapabilities(testCapabilities()...),
		WithSessionStore(store),
		WithLogger(logger),
	)
	require.NoError(t, err)
	defer orch.Close()

	id, err := orch.InitiateHandoff(ctx, handoff.InitiateOptions{
		SourceAgentID: "companion",
		TargetAgentID: "analyst",
		SessionToken:  "tok-1",
		Reason:        "needs sleep pattern analysis",
	})
	require.NoError(t, err)

	req, err := orch.GetHandoffStatus(id)
	require.NoError(t, err)
	assert.Equal(t, handoff.StatusCompleted, req.Status)
	assert.True(t, req.DurableContext)

	// The default in-memory vault serves hydration.
	hydrated, err := orch.HydrateTargetAgentContext(ctx, id, "analyst")
	require.NoError(t, err)
	assert.Equal(t, 2, hydrated.Window.MessageCount)
	assert.Equal(t, "sess-1", hydrated.SessionID)
}

func TestNewWithHistoryLimit(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := session.NewMemoryStore(logger)
	require.NoError(t, store.CreateSession("tok-1", "sess-1", "user-1", "companion"))
	ctx := context.Background()
	require.NoError(t, store.AddMessage(ctx, "tok-1", "", types.RoleUser, "hello"))

	orch, err := New(
		WithCapabilities(testCapabilities()...),
		WithSessionStore(store),
		WithHistoryLimit(1),
		WithLogger(logger),
	)
	require.NoError(t, err)
	defer orch.Close()

	for i := 0; i < 3; i++ {
		_, err := orch.InitiateHandoff(ctx, handoff.InitiateOptions{
			SourceAgentID: "companion",
			TargetAgentID: "analyst",
			SessionToken:  "tok-1",
			Reason:        "routine",
		})
		require.NoError(t, err)
		// Hand the turn back so the next hop can initiate again.
		require.NoError(t, store.ReleaseTurn(ctx, "tok-1", "analyst"))
		require.NoError(t, store.RequestTurn(ctx, "tok-1", "companion"))
	}

	assert.Len(t, orch.GetHandoffHistory(0), 1)
}
