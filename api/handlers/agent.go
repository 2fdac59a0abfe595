package handlers

import (
	"net/http"
	"strings"

	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/handoff"
	"go.uber.org/zap"
)

// =============================================================================
// Agent Capability Handler
// =============================================================================

// AgentHandler serves the agent capability table.
type AgentHandler struct {
	registry *handoff.CapabilityRegistry
	logger   *zap.Logger
}

// NewAgentHandler creates an agent handler.
func NewAgentHandler(registry *handoff.CapabilityRegistry, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		registry: registry,
		logger:   logger.With(zap.String("component", "agent_handler")),
	}
}

// RegisterRoutes registers the agent routes on the given mux.
func (h *AgentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/agents", h.HandleListAgents)
	mux.HandleFunc("/api/v1/agents/{id}", h.HandleGetAgent)
}

// =============================================================================
// Agent Endpoints
// =============================================================================

// HandleListAgents lists the capability entries of every registered agent
// @Summary List agents
// @Description Get the capability entries of all registered agents
// @Tags agent
// @Produce json
// @Success 200 {object} Response{data=api.AgentListResponse} "Agent list"
// @Security BearerAuth
// @Router /api/v1/agents [get]
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method "+r.Method+" not allowed", h.logger)
		return
	}

	ids := h.registry.Agents()
	agents := make([]api.AgentCapability, 0, len(ids))
	for _, id := range ids {
		if capability, ok := h.registry.Lookup(id); ok {
			agents = append(agents, capability)
		}
	}

	WriteSuccess(w, api.AgentListResponse{
		Agents: agents,
		Count:  len(agents),
	})
}

// HandleGetAgent gets a single agent's capability entry
// @Summary Get agent
// @Description Get the capability entry of a specific agent
// @Tags agent
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} Response{data=api.AgentCapability} "Agent capability"
// @Failure 404 {object} Response "Agent not found"
// @Security BearerAuth
// @Router /api/v1/agents/{id} [get]
func (h *AgentHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"method "+r.Method+" not allowed", h.logger)
		return
	}

	agentID := extractAgentID(r)
	if agentID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "agent ID is required", h.logger)
		return
	}

	capability, ok := h.registry.Lookup(agentID)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, "AGENT_NOT_FOUND",
			"unknown agent: "+agentID, h.logger)
		return
	}

	WriteSuccess(w, capability)
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractAgentID extracts the agent ID from the URL path.
// Supports both /api/v1/agents/{id} (PathValue) and prefix trimming.
func extractAgentID(r *http.Request) string {
	// Try Go 1.22+ PathValue first
	if id := r.PathValue("id"); id != "" {
		return id
	}
	// Fallback: extract from URL path by trimming the prefix
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	if path != "" && path != r.URL.Path && !strings.Contains(path, "/") {
		return path
	}
	return ""
}
