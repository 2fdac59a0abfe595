package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrelay/handoff"
	"github.com/BaSui01/agentrelay/types"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Driver: "sqlite", DSN: ":memory:"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func terminalRequest(id string, status handoff.HandoffStatus, durable bool, initiated time.Time) *handoff.HandoffRequest {
	completed := initiated.Add(2 * time.Second)
	return &handoff.HandoffRequest{
		HandoffID:      id,
		SourceAgentID:  "companion",
		TargetAgentID:  "analyst",
		SessionToken:   "tok-1",
		Reason:         "needs analysis",
		Priority:       handoff.PriorityNormal,
		Status:         status,
		DurableContext: durable,
		CreatedAt:      initiated,
		UpdatedAt:      completed,
		CompletionTime: &completed,
		Context: &handoff.HandoffContext{
			SessionID: "sess-1",
			UserID:    "user-1",
			Tags:      []string{"mood", "topic"},
			ConversationWindow: []types.Message{
				types.NewUserMessage("hello"),
				types.NewAssistantMessage("hi"),
			},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	initiated := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordHandoff(ctx, terminalRequest("hoff-1", handoff.StatusCompleted, true, initiated)))

	rec, err := store.Get(ctx, "hoff-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "companion", rec.SourceAgentID)
	assert.Equal(t, "analyst", rec.TargetAgentID)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, "normal", rec.Priority)
	assert.True(t, rec.DurableContext)
	assert.Equal(t, 2, rec.TagCount)
	assert.Equal(t, 2, rec.WindowSize)
	require.NotNil(t, rec.CompletedAt)
}

func TestGetUnknownFails(t *testing.T) {
	store := setupStore(t)
	_, err := store.Get(context.Background(), "hoff-missing")
	require.Error(t, err)
}

func TestDuplicateHandoffIDRejected(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.RecordHandoff(ctx, terminalRequest("hoff-1", handoff.StatusCompleted, true, now)))
	err := store.RecordHandoff(ctx, terminalRequest("hoff-1", handoff.StatusFailed, false, now))
	require.Error(t, err)
}

func TestListFiltersAndOrders(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordHandoff(ctx, terminalRequest("hoff-1", handoff.StatusCompleted, true, base)))
	require.NoError(t, store.RecordHandoff(ctx, terminalRequest("hoff-2", handoff.StatusFailed, false, base.Add(time.Minute))))
	older := terminalRequest("hoff-3", handoff.StatusCancelled, false, base.Add(2*time.Minute))
	older.SourceAgentID = "analyst"
	older.TargetAgentID = "companion"
	require.NoError(t, store.RecordHandoff(ctx, older))

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "hoff-3", all[0].HandoffID)
	assert.Equal(t, "hoff-1", all[2].HandoffID)

	failed, err := store.List(ctx, Filter{Status: "failed"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "hoff-2", failed[0].HandoffID)

	bySource, err := store.List(ctx, Filter{SourceAgentID: "analyst"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "hoff-3", bySource[0].HandoffID)

	limited, err := store.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStatsAggregatesOutcomes(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.RecordHandoff(ctx, terminalRequest("hoff-1", handoff.StatusCompleted, true, base)))
	require.NoError(t, store.RecordHandoff(ctx, terminalRequest("hoff-2", handoff.StatusCompleted, false, base)))
	require.NoError(t, store.RecordHandoff(ctx, terminalRequest("hoff-3", handoff.StatusFailed, false, base)))
	require.NoError(t, store.RecordHandoff(ctx, terminalRequest("hoff-4", handoff.StatusCancelled, false, base)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Cancelled)
	assert.Equal(t, int64(1), stats.Degraded)
}

func TestOrchestratorFeedsAuditStore(t *testing.T) {
	store := setupStore(t)

	// The sink contract accepts any terminal request the orchestrator
	// produces, including failed ones without completion metadata.
	failed := terminalRequest("hoff-err", handoff.StatusFailed, false, time.Now())
	failed.ErrorMessage = "turn release failed"
	failed.Context = nil

	require.NoError(t, store.RecordHandoff(context.Background(), failed))
	rec, err := store.Get(context.Background(), "hoff-err")
	require.NoError(t, err)
	assert.Equal(t, "turn release failed", rec.ErrorMessage)
	assert.Empty(t, rec.SessionID)
	assert.Zero(t, rec.WindowSize)
}
