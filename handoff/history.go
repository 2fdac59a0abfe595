package handoff

import (
	"context"
	"sync"
)

// DefaultHistoryLimit bounds the in-memory log of terminal requests.
const DefaultHistoryLimit = 256

// AuditSink receives every retired request for durable audit storage.
// Sink failures are logged by the orchestrator, never propagated; the
// in-memory history stays authoritative for this process.
type AuditSink interface {
	RecordHandoff(ctx context.Context, req *HandoffRequest) error
}

// historyLog holds retired requests, newest first, bounded by limit.
// Terminal requests are immutable so entries are shared, not copied.
type historyLog struct {
	mu      sync.RWMutex
	limit   int
	entries []*HandoffRequest
	byID    map[string]*HandoffRequest
}

func newHistoryLog(limit int) *historyLog {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &historyLog{
		limit: limit,
		byID:  make(map[string]*HandoffRequest),
	}
}

// add retires a request into the log, evicting the oldest entry when the
// bound is exceeded.
func (h *historyLog) add(req *HandoffRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, req)
	h.byID[req.HandoffID] = req
	if len(h.entries) > h.limit {
		evicted := h.entries[0]
		h.entries = h.entries[1:]
		delete(h.byID, evicted.HandoffID)
	}
}

// get looks up a retired request by id.
func (h *historyLog) get(id string) (*HandoffRequest, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	req, ok := h.byID[id]
	return req, ok
}

// list returns up to limit summaries, newest first. limit <= 0 returns
// everything retained.
func (h *historyLog) list(limit int) []Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Summary, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, summarize(h.entries[i]))
	}
	return out
}

func (h *historyLog) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
