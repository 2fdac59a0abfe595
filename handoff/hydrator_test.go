package handoff

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrelay/vault"
)

func TestHydrateReturnsVerifiedContext(t *testing.T) {
	p := NewBundlePersister(vault.NewMemoryVault(), zaptest.NewLogger(t))
	h := NewContextHydrator(p, zaptest.NewLogger(t))
	req := testRequest("hoff-1", []string{"mood", "topic"}, []string{"signals"}, windowOf(6))

	_, _, err := p.Persist(context.Background(), req)
	require.NoError(t, err)

	hydrated, err := h.Hydrate(context.Background(), req, "analyst")
	require.NoError(t, err)

	assert.Equal(t, "hoff-1", hydrated.HandoffID)
	assert.Equal(t, "sess-1", hydrated.SessionID)
	assert.Equal(t, "companion", hydrated.SourceAgentID)
	assert.Equal(t, "analyst", hydrated.TargetAgentID)
	assert.Equal(t, []string{"mood", "topic"}, hydrated.VerifiedTags.OriginalTags)
	assert.Equal(t, []string{"signals"}, hydrated.VerifiedTags.AgentSpecificTags)
	assert.Equal(t, 6, hydrated.Window.MessageCount)
	assert.Equal(t, []string{"mem-1", "mem-2"}, hydrated.MemoryReferences)
	assert.NotEmpty(t, hydrated.Continuity.Checksum)
	assert.False(t, hydrated.HydratedAt.IsZero())
}

func TestHydrateWrongTargetIsUnknown(t *testing.T) {
	p := NewBundlePersister(vault.NewMemoryVault(), zaptest.NewLogger(t))
	h := NewContextHydrator(p, zaptest.NewLogger(t))
	req := testRequest("hoff-1", []string{"mood"}, nil, nil)

	_, _, err := p.Persist(context.Background(), req)
	require.NoError(t, err)

	hydrated, err := h.Hydrate(context.Background(), req, "companion")
	require.Error(t, err)
	assert.Nil(t, hydrated)
	assert.True(t, IsUnknownHandoff(err))
}

func TestHydrateWithoutBundleDegrades(t *testing.T) {
	p := NewBundlePersister(vault.NewMemoryVault(), zaptest.NewLogger(t))
	h := NewContextHydrator(p, zaptest.NewLogger(t))
	req := testRequest("hoff-1", []string{"mood"}, nil, nil)

	hydrated, err := h.Hydrate(context.Background(), req, "analyst")
	require.Error(t, err)
	assert.Nil(t, hydrated)
	assert.True(t, IsPersistenceDegraded(err))
}

func TestHydrateTagParityMismatchFailsHard(t *testing.T) {
	fv := newFlakyVault()
	p := NewBundlePersister(fv, zaptest.NewLogger(t))
	h := NewContextHydrator(p, zaptest.NewLogger(t))
	req := testRequest("hoff-1", []string{"mood", "topic"}, nil, nil)

	_, _, err := p.Persist(context.Background(), req)
	require.NoError(t, err)

	// Corrupt the stored tag set after the successful persist.
	fv.tamper = func(b []byte) []byte {
		return bytes.ReplaceAll(b, []byte(`"mood"`), []byte(`"doom"`))
	}

	hydrated, err := h.Hydrate(context.Background(), req, "analyst")
	require.Error(t, err)
	assert.Nil(t, hydrated)
	assert.True(t, IsVerificationFailure(err))
	assert.Contains(t, err.Error(), "tag parity")
}

func TestHydrateRequestDriftFailsHard(t *testing.T) {
	p := NewBundlePersister(vault.NewMemoryVault(), zaptest.NewLogger(t))
	h := NewContextHydrator(p, zaptest.NewLogger(t))
	req := testRequest("hoff-1", []string{"mood"}, nil, nil)

	_, _, err := p.Persist(context.Background(), req)
	require.NoError(t, err)

	// The request side now claims a different original tag set than the
	// one that was persisted.
	req.Context.OriginalTags = []string{"mood", "injected"}

	_, err = h.Hydrate(context.Background(), req, "analyst")
	require.Error(t, err)
	assert.True(t, IsVerificationFailure(err))
}
