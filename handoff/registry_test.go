package handoff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *CapabilityRegistry {
	return NewCapabilityRegistry(
		Capability{
			AgentID:               "companion",
			DisplayName:           "Companion",
			Specialties:           []string{"conversation", "wellbeing"},
			AcceptsHandoffs:       true,
			CanInitiate:           true,
			RequiredContextFields: []string{"session_id", "conversation_window"},
		},
		Capability{
			AgentID:         "analyst",
			DisplayName:     "Behavioral Analyst",
			Specialties:     []string{"signal_extraction"},
			AcceptsHandoffs: true,
			CanInitiate:     true,
		},
		Capability{
			AgentID:         "scribe",
			DisplayName:     "Scribe",
			AcceptsHandoffs: true,
			CanInitiate:     false,
		},
		Capability{
			AgentID:         "notifier",
			DisplayName:     "Notifier",
			AcceptsHandoffs: false,
			CanInitiate:     true,
		},
	)
}

func TestCapabilityRegistryLookup(t *testing.T) {
	reg := testRegistry()

	c, ok := reg.Lookup("companion")
	require.True(t, ok)
	assert.Equal(t, "Companion", c.DisplayName)
	assert.Equal(t, []string{"conversation", "wellbeing"}, c.Specialties)
	assert.True(t, c.AcceptsHandoffs)
	assert.True(t, c.CanInitiate)
	assert.Equal(t, []string{"session_id", "conversation_window"}, c.RequiredContextFields)

	_, ok = reg.Lookup("ghost")
	assert.False(t, ok)
}

func TestCapabilityRegistrySkipsEmptyAgentID(t *testing.T) {
	reg := NewCapabilityRegistry(
		Capability{AgentID: "", DisplayName: "Anonymous"},
		Capability{AgentID: "a", DisplayName: "A"},
	)
	assert.Equal(t, []string{"a"}, reg.Agents())
}

func TestCapabilityRegistryDuplicateLastWins(t *testing.T) {
	reg := NewCapabilityRegistry(
		Capability{AgentID: "a", DisplayName: "First"},
		Capability{AgentID: "a", DisplayName: "Second"},
	)
	c, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "Second", c.DisplayName)
}

func TestCapabilityRegistryAgentsSorted(t *testing.T) {
	reg := testRegistry()
	assert.Equal(t, []string{"analyst", "companion", "notifier", "scribe"}, reg.Agents())
}

func TestLoadCapabilitiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `agents:
  - agent_id: companion
    display_name: Companion
    specialties: [conversation]
    can_initiate: true
    accepts_handoffs: true
    required_context_fields: [session_id]
  - agent_id: scribe
    display_name: Scribe
    accepts_handoffs: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	caps, err := LoadCapabilitiesFile(path)
	require.NoError(t, err)
	require.Len(t, caps, 2)

	assert.Equal(t, "companion", caps[0].AgentID)
	assert.Equal(t, "Companion", caps[0].DisplayName)
	assert.Equal(t, []string{"conversation"}, caps[0].Specialties)
	assert.True(t, caps[0].CanInitiate)
	assert.True(t, caps[0].AcceptsHandoffs)
	assert.Equal(t, []string{"session_id"}, caps[0].RequiredContextFields)

	assert.Equal(t, "scribe", caps[1].AgentID)
	assert.False(t, caps[1].CanInitiate)
}

func TestLoadCapabilitiesFileErrors(t *testing.T) {
	_, err := LoadCapabilitiesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read capabilities file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("agents: {not a list}"), 0o600))
	_, err = LoadCapabilitiesFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse capabilities file")

	anon := filepath.Join(t.TempDir(), "anon.yaml")
	require.NoError(t, os.WriteFile(anon, []byte("agents:\n  - display_name: Ghost\n"), 0o600))
	_, err = LoadCapabilitiesFile(anon)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty agent_id")
}

func TestValidatePair(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name    string
		source  string
		target  string
		wantErr string
	}{
		{name: "allowed pair", source: "companion", target: "analyst"},
		{name: "reverse direction also allowed", source: "analyst", target: "companion"},
		{name: "unknown source", source: "ghost", target: "analyst", wantErr: "unknown source agent"},
		{name: "unknown target", source: "companion", target: "ghost", wantErr: "unknown target agent"},
		{name: "source cannot initiate", source: "scribe", target: "analyst", wantErr: "cannot initiate"},
		{name: "target does not accept", source: "companion", target: "notifier", wantErr: "does not accept"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.ValidatePair(tt.source, tt.target)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsRejectedInitiation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
