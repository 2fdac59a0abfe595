package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/agentrelay/handoff"
	"github.com/BaSui01/agentrelay/session"
	"github.com/BaSui01/agentrelay/types"
	"github.com/BaSui01/agentrelay/vault"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// Test Harness
// =============================================================================

type eventsHarness struct {
	srv   *httptest.Server
	orch  *handoff.Orchestrator
	store *session.MemoryStore
}

func newEventsHarness(t *testing.T, sessions ...session.Store) *eventsHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := session.NewMemoryStore(logger)

	var sessStore session.Store = store
	if len(sessions) > 0 && sessions[0] != nil {
		sessStore = sessions[0]
	}

	gatherer := handoff.NewContextGatherer(sessStore, nil, 0, logger)
	persister := handoff.NewBundlePersister(vault.NewMemoryVault(), logger)
	hydrator := handoff.NewContextHydrator(persister, logger)
	orch := handoff.NewOrchestrator(handlerTestRegistry(), gatherer, persister, hydrator, sessStore, logger)

	mux := http.NewServeMux()
	NewEventsHandler(orch, logger).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &eventsHarness{srv: srv, orch: orch, store: store}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dialEvents(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv, path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })

	// 握手完成后服务端才注册订阅，留出注册窗口
	time.Sleep(100 * time.Millisecond)
	return conn
}

func readEvents(t *testing.T, conn *websocket.Conn, n int) []handoff.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make([]handoff.Event, 0, n)
	for i := 0; i < n; i++ {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, websocket.MessageText, typ)

		var ev handoff.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		events = append(events, ev)
	}
	return events
}

func statusesOf(events []handoff.Event) []handoff.HandoffStatus {
	out := make([]handoff.HandoffStatus, len(events))
	for i, ev := range events {
		out[i] = ev.Status
	}
	return out
}

// =============================================================================
// Event Stream
// =============================================================================

func TestEventsHandler_StreamsLifecycle(t *testing.T) {
	h := newEventsHarness(t)
	require.NoError(t, h.store.CreateSession("tok-1", "sess-1", "user-1", "companion"))
	require.NoError(t, h.store.AddMessage(context.Background(), "tok-1", "", types.RoleUser, "hello"))

	conn := dialEvents(t, h.srv, "/api/v1/events")

	id, err := h.orch.InitiateHandoff(context.Background(), handoff.InitiateOptions{
		SourceAgentID: "companion",
		TargetAgentID: "analyst",
		SessionToken:  "tok-1",
	})
	require.NoError(t, err)

	// 事件在各自的 goroutine 上投递，到达顺序不保证
	events := readEvents(t, conn, 3)
	assert.ElementsMatch(t,
		[]handoff.HandoffStatus{handoff.StatusInitiated, handoff.StatusInProgress, handoff.StatusCompleted},
		statusesOf(events))

	for _, ev := range events {
		assert.Equal(t, id, ev.HandoffID)
		assert.Equal(t, "sess-1", ev.SessionID)
		assert.Equal(t, "companion", ev.SourceAgentID)
		assert.Equal(t, "analyst", ev.TargetAgentID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestEventsHandler_FailedHandoffCarriesError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	inner := session.NewMemoryStore(logger)
	h := newEventsHarness(t, &breakingTurnStore{Store: inner})

	require.NoError(t, inner.CreateSession("tok-1", "sess-1", "user-1", "companion"))
	require.NoError(t, inner.AddMessage(context.Background(), "tok-1", "", types.RoleUser, "hello"))

	conn := dialEvents(t, h.srv, "/api/v1/events")

	_, err := h.orch.InitiateHandoff(context.Background(), handoff.InitiateOptions{
		SourceAgentID: "companion",
		TargetAgentID: "analyst",
		SessionToken:  "tok-1",
	})
	require.Error(t, err)

	events := readEvents(t, conn, 3)
	assert.ElementsMatch(t,
		[]handoff.HandoffStatus{handoff.StatusInitiated, handoff.StatusInProgress, handoff.StatusFailed},
		statusesOf(events))

	for _, ev := range events {
		if ev.Status == handoff.StatusFailed {
			assert.Contains(t, ev.ErrorMessage, "turn release")
		}
	}
}

func TestEventsHandler_SessionFilter(t *testing.T) {
	h := newEventsHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.CreateSession("tok-1", "sess-1", "user-1", "companion"))
	require.NoError(t, h.store.AddMessage(ctx, "tok-1", "", types.RoleUser, "hello"))
	require.NoError(t, h.store.CreateSession("tok-2", "sess-2", "user-2", "companion"))
	require.NoError(t, h.store.AddMessage(ctx, "tok-2", "", types.RoleUser, "hi there"))

	conn := dialEvents(t, h.srv, "/api/v1/events?session_id=sess-2")

	_, err := h.orch.InitiateHandoff(ctx, handoff.InitiateOptions{
		SourceAgentID: "companion",
		TargetAgentID: "analyst",
		SessionToken:  "tok-1",
	})
	require.NoError(t, err)

	id2, err := h.orch.InitiateHandoff(ctx, handoff.InitiateOptions{
		SourceAgentID: "companion",
		TargetAgentID: "analyst",
		SessionToken:  "tok-2",
	})
	require.NoError(t, err)

	// 过滤后只有 sess-2 的三个事件在流上
	events := readEvents(t, conn, 3)
	for _, ev := range events {
		assert.Equal(t, "sess-2", ev.SessionID)
		assert.Equal(t, id2, ev.HandoffID)
	}
}

func TestEventsHandler_MultipleClients(t *testing.T) {
	h := newEventsHarness(t)
	require.NoError(t, h.store.CreateSession("tok-1", "sess-1", "user-1", "companion"))
	require.NoError(t, h.store.AddMessage(context.Background(), "tok-1", "", types.RoleUser, "hello"))

	conn1 := dialEvents(t, h.srv, "/api/v1/events")
	conn2 := dialEvents(t, h.srv, "/api/v1/events")

	id, err := h.orch.InitiateHandoff(context.Background(), handoff.InitiateOptions{
		SourceAgentID: "companion",
		TargetAgentID: "analyst",
		SessionToken:  "tok-1",
	})
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		events := readEvents(t, conn, 3)
		for _, ev := range events {
			assert.Equal(t, id, ev.HandoffID)
		}
	}
}

func TestEventsHandler_RejectsPlainHTTP(t *testing.T) {
	h := newEventsHarness(t)

	resp, err := http.Get(h.srv.URL + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	// 非升级请求被 websocket.Accept 拒绝
	assert.GreaterOrEqual(t, resp.StatusCode, http.StatusBadRequest)
}
