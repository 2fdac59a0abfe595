package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/BaSui01/agentrelay/handoff"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// Event Stream Handler
// =============================================================================

// eventBuffer 每个订阅者的事件缓冲大小，慢消费者超出后丢弃事件
const eventBuffer = 64

// EventsHandler streams handoff lifecycle events over WebSocket.
type EventsHandler struct {
	orch   *handoff.Orchestrator
	logger *zap.Logger
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(orch *handoff.Orchestrator, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		orch:   orch,
		logger: logger.With(zap.String("component", "events_handler")),
	}
}

// RegisterRoutes registers the event stream route on the given mux.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/events", h.HandleEvents)
}

// HandleEvents upgrades to WebSocket and streams lifecycle events
// @Summary Stream handoff events
// @Description Upgrade to WebSocket and receive handoff lifecycle events as JSON text messages
// @Tags events
// @Param session_id query string false "Only deliver events for this session"
// @Success 101 "Switching protocols"
// @Security BearerAuth
// @Router /api/v1/events [get]
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	sessionFilter := r.URL.Query().Get("session_id")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 订阅回调在 orchestrator 的 goroutine 上运行，
	// 通过带缓冲的通道解耦，慢客户端丢弃而不阻塞
	events := make(chan handoff.Event, eventBuffer)
	subID := h.orch.Subscribe(func(ev handoff.Event) {
		if sessionFilter != "" && ev.SessionID != sessionFilter {
			return
		}
		select {
		case events <- ev:
		default:
			h.logger.Debug("event buffer full, dropping event",
				zap.String("handoff_id", ev.HandoffID))
		}
	})
	defer h.orch.Unsubscribe(subID)

	h.logger.Info("event stream subscribed",
		zap.String("subscription_id", subID),
		zap.String("session_filter", sessionFilter))

	// 读取循环只用于感知客户端断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "done")
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("event marshal failed", zap.Error(err))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.logger.Debug("event write failed, closing stream", zap.Error(err))
				return
			}
		}
	}
}
