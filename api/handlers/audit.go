package handlers

import (
	"net/http"
	"strconv"

	"github.com/BaSui01/agentrelay/audit"
	"github.com/BaSui01/agentrelay/handoff"
	"go.uber.org/zap"
)

// =============================================================================
// Audit Handler
// =============================================================================

// AuditHandler serves audit records and service statistics. The audit
// store is optional; when nil, the audit endpoints respond 404 and stats
// fall back to orchestrator-only counters.
type AuditHandler struct {
	orch   *handoff.Orchestrator
	store  *audit.Store
	logger *zap.Logger
}

// StatsData aggregates live orchestrator state with audit store outcomes.
type StatsData struct {
	ActiveHandoffs  int          `json:"active_handoffs"`
	RetiredHandoffs int          `json:"retired_handoffs"`
	Audit           *audit.Stats `json:"audit,omitempty"`
}

// AuditListResponse wraps a page of audit records.
type AuditListResponse struct {
	Records []audit.Record `json:"records"`
	Count   int            `json:"count"`
}

// NewAuditHandler creates an audit handler. store may be nil.
func NewAuditHandler(orch *handoff.Orchestrator, store *audit.Store, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{
		orch:   orch,
		store:  store,
		logger: logger.With(zap.String("component", "audit_handler")),
	}
}

// RegisterRoutes registers the audit and stats routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/audit", h.HandleRecords)
	mux.HandleFunc("/api/v1/stats", h.HandleStats)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// HandleRecords lists audit records
// @Summary List audit records
// @Description List terminal handoff audit records with optional filters
// @Tags audit
// @Produce json
// @Param session_id query string false "Filter by session"
// @Param source_agent_id query string false "Filter by source agent"
// @Param target_agent_id query string false "Filter by target agent"
// @Param status query string false "Filter by terminal status"
// @Param limit query int false "Maximum records to return" default(100)
// @Success 200 {object} Response{data=AuditListResponse} "Audit records"
// @Failure 404 {object} Response "Audit store disabled"
// @Security BearerAuth
// @Router /api/v1/audit [get]
func (h *AuditHandler) HandleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method "+r.Method+" not allowed", h.logger)
		return
	}
	if h.store == nil {
		WriteErrorMessage(w, http.StatusNotFound, "AUDIT_DISABLED",
			"audit store is not enabled", h.logger)
		return
	}

	filter := audit.Filter{
		SessionID:     r.URL.Query().Get("session_id"),
		SourceAgentID: r.URL.Query().Get("source_agent_id"),
		TargetAgentID: r.URL.Query().Get("target_agent_id"),
		Status:        r.URL.Query().Get("status"),
		Limit:         100,
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			filter.Limit = l
		}
	}

	records, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit list failed", zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"failed to list audit records", h.logger)
		return
	}

	WriteSuccess(w, AuditListResponse{
		Records: records,
		Count:   len(records),
	})
}

// HandleStats returns service statistics
// @Summary Service statistics
// @Description Aggregate live handoff counts with audit outcomes
// @Tags audit
// @Produce json
// @Success 200 {object} Response{data=StatsData} "Statistics"
// @Security BearerAuth
// @Router /api/v1/stats [get]
func (h *AuditHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method "+r.Method+" not allowed", h.logger)
		return
	}

	data := StatsData{
		ActiveHandoffs:  len(h.orch.ListActiveHandoffs()),
		RetiredHandoffs: len(h.orch.GetHandoffHistory(0)),
	}

	if h.store != nil {
		stats, err := h.store.Stats(r.Context())
		if err != nil {
			h.logger.Warn("audit stats unavailable", zap.Error(err))
		} else {
			data.Audit = &stats
		}
	}

	WriteSuccess(w, data)
}
