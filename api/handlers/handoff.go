package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/handoff"
	"go.uber.org/zap"
)

// =============================================================================
// Handoff Handler
// =============================================================================

// HandoffHandler serves the handoff lifecycle endpoints.
type HandoffHandler struct {
	orch   *handoff.Orchestrator
	logger *zap.Logger
}

// NewHandoffHandler creates a handoff handler.
func NewHandoffHandler(orch *handoff.Orchestrator, logger *zap.Logger) *HandoffHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HandoffHandler{
		orch:   orch,
		logger: logger.With(zap.String("component", "handoff_handler")),
	}
}

// RegisterRoutes registers the handoff routes on the given mux.
func (h *HandoffHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/handoffs", h.HandleHandoffs)
	mux.HandleFunc("/api/v1/handoffs/history", h.HandleHistory)
	mux.HandleFunc("/api/v1/handoffs/{id}", h.HandleHandoff)
	mux.HandleFunc("/api/v1/handoffs/{id}/context", h.HandleHydrate)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// HandleHandoffs dispatches the collection endpoint.
func (h *HandoffHandler) HandleHandoffs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreate(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method "+r.Method+" not allowed", h.logger)
	}
}

// handleCreate initiates a handoff
// @Summary Initiate handoff
// @Description Initiate a transfer of conversational control between two agents
// @Tags handoff
// @Accept json
// @Produce json
// @Param request body api.HandoffCreateRequest true "Handoff request"
// @Success 202 {object} Response{data=api.HandoffResource} "Handoff accepted"
// @Failure 400 {object} Response "Invalid agent pair or request"
// @Failure 502 {object} Response "Turn transfer failed"
// @Security BearerAuth
// @Router /api/v1/handoffs [post]
func (h *HandoffHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.HandoffCreateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.SourceAgentID == "" || req.TargetAgentID == "" || req.SessionToken == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST",
			"source_agent_id, target_agent_id and session_token are required", h.logger)
		return
	}

	priority := handoff.Priority(req.Priority)
	if req.Priority == "" {
		priority = handoff.PriorityNormal
	}

	handoffID, err := h.orch.InitiateHandoff(r.Context(), handoff.InitiateOptions{
		SourceAgentID: req.SourceAgentID,
		TargetAgentID: req.TargetAgentID,
		SessionToken:  req.SessionToken,
		Reason:        req.Reason,
		Priority:      priority,
		Tags:          req.Tags,
		Metadata:      req.Metadata,
	})
	if err != nil && handoffID == "" {
		WriteError(w, err, h.logger)
		return
	}

	// A failed transfer still tracks the request in a terminal state;
	// report the outcome with the resource rather than a bare error.
	record, statusErr := h.orch.GetHandoffStatus(handoffID)
	if statusErr != nil {
		WriteError(w, statusErr, h.logger)
		return
	}

	WriteJSON(w, http.StatusAccepted, Response{
		Success:   err == nil,
		Data:      api.NewHandoffResource(record),
		Timestamp: time.Now(),
	})
}

// handleList lists active handoffs
// @Summary List active handoffs
// @Description List all non-terminal handoff requests, newest first
// @Tags handoff
// @Produce json
// @Success 200 {object} Response{data=api.HandoffListResponse} "Active handoffs"
// @Security BearerAuth
// @Router /api/v1/handoffs [get]
func (h *HandoffHandler) handleList(w http.ResponseWriter, r *http.Request) {
	summaries := h.orch.ListActiveHandoffs()
	WriteSuccess(w, api.HandoffListResponse{
		Handoffs: summaries,
		Count:    len(summaries),
	})
}

// HandleHandoff dispatches the single-resource endpoint.
func (h *HandoffHandler) HandleHandoff(w http.ResponseWriter, r *http.Request) {
	handoffID := extractHandoffID(r)
	if handoffID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "handoff ID is required", h.logger)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, handoffID)
	case http.MethodDelete:
		h.handleCancel(w, r, handoffID)
	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method "+r.Method+" not allowed", h.logger)
	}
}

// handleGet returns a single handoff
// @Summary Get handoff
// @Description Get the current state of a handoff request
// @Tags handoff
// @Produce json
// @Param id path string true "Handoff ID"
// @Success 200 {object} Response{data=api.HandoffResource} "Handoff state"
// @Failure 404 {object} Response "Unknown handoff"
// @Security BearerAuth
// @Router /api/v1/handoffs/{id} [get]
func (h *HandoffHandler) handleGet(w http.ResponseWriter, r *http.Request, handoffID string) {
	record, err := h.orch.GetHandoffStatus(handoffID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewHandoffResource(record))
}

// handleCancel cancels a non-terminal handoff
// @Summary Cancel handoff
// @Description Cancel a handoff that has not reached a terminal state
// @Tags handoff
// @Accept json
// @Produce json
// @Param id path string true "Handoff ID"
// @Param request body api.CancelRequest false "Cancel reason"
// @Success 200 {object} Response{data=api.CancelResult} "Cancel outcome"
// @Failure 404 {object} Response "Unknown handoff"
// @Security BearerAuth
// @Router /api/v1/handoffs/{id} [delete]
func (h *HandoffHandler) handleCancel(w http.ResponseWriter, r *http.Request, handoffID string) {
	reason := r.URL.Query().Get("reason")
	if r.Body != nil && r.ContentLength > 0 {
		var req api.CancelRequest
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
		if req.Reason != "" {
			reason = req.Reason
		}
	}
	if reason == "" {
		reason = "cancelled via API"
	}

	cancelled := h.orch.CancelHandoff(r.Context(), handoffID, reason)
	if !cancelled {
		// Distinguish unknown ids from requests already in a terminal
		// state: the former is a 404, the latter a no-op result.
		if _, err := h.orch.GetHandoffStatus(handoffID); err != nil {
			WriteError(w, err, h.logger)
			return
		}
	}

	WriteSuccess(w, api.CancelResult{
		HandoffID: handoffID,
		Cancelled: cancelled,
	})
}

// HandleHydrate rebuilds persisted context for the target agent
// @Summary Hydrate target context
// @Description Reconstruct the persisted context bundle for the handoff's target agent
// @Tags handoff
// @Accept json
// @Produce json
// @Param id path string true "Handoff ID"
// @Param request body api.HydrateRequest true "Hydration request"
// @Success 200 {object} Response{data=api.HydratedContext} "Rehydrated context"
// @Failure 404 {object} Response "Unknown handoff"
// @Failure 409 {object} Response "Continuity verification failed"
// @Failure 503 {object} Response "Bundle retrieval failed"
// @Security BearerAuth
// @Router /api/v1/handoffs/{id}/context [post]
func (h *HandoffHandler) HandleHydrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method "+r.Method+" not allowed", h.logger)
		return
	}

	handoffID := extractHandoffID(r)
	if handoffID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "handoff ID is required", h.logger)
		return
	}

	var req api.HydrateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.TargetAgentID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "target_agent_id is required", h.logger)
		return
	}

	hydrated, err := h.orch.HydrateTargetAgentContext(r.Context(), handoffID, req.TargetAgentID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, hydrated)
}

// HandleHistory lists retired handoffs
// @Summary Handoff history
// @Description List retired terminal handoffs, newest first
// @Tags handoff
// @Produce json
// @Param limit query int false "Maximum entries to return" default(50)
// @Success 200 {object} Response{data=api.HandoffListResponse} "Retired handoffs"
// @Security BearerAuth
// @Router /api/v1/handoffs/history [get]
func (h *HandoffHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method "+r.Method+" not allowed", h.logger)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	summaries := h.orch.GetHandoffHistory(limit)
	WriteSuccess(w, api.HandoffListResponse{
		Handoffs: summaries,
		Count:    len(summaries),
	})
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractHandoffID extracts the handoff ID from the URL path.
// Supports both /api/v1/handoffs/{id} (PathValue) and prefix trimming.
func extractHandoffID(r *http.Request) string {
	// Try Go 1.22+ PathValue first
	if id := r.PathValue("id"); id != "" {
		return id
	}
	// Fallback: extract from URL path by trimming the prefix
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/handoffs/")
	if path == "" || path == r.URL.Path {
		return ""
	}
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		path = path[:idx]
	}
	return path
}
