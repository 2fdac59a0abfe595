package api

import (
	"time"

	"github.com/BaSui01/agentrelay/handoff"
)

// =============================================================================
// 统一响应封套
// =============================================================================

// Response 统一 API 响应结构。
// @Description 统一 JSON 响应封套
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构。
// @Description 结构化错误信息
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"` // 不序列化到 JSON
}

// =============================================================================
// 交接请求类型
// =============================================================================

// HandoffCreateRequest 代表发起交接的请求。
// @Description 交接发起请求结构
type HandoffCreateRequest struct {
	// 交出会话控制权的 Agent
	SourceAgentID string `json:"source_agent_id" example:"companion" binding:"required"`
	// 接收会话控制权的 Agent
	TargetAgentID string `json:"target_agent_id" example:"analyst" binding:"required"`
	// 会话轮次令牌
	SessionToken string `json:"session_token" example:"tok-8f2c" binding:"required"`
	// 交接原因
	Reason string `json:"reason,omitempty" example:"needs quantitative analysis"`
	// 优先级（low、normal、high、urgent）
	Priority string `json:"priority,omitempty" example:"normal"`
	// 随交接保留的上下文标签
	Tags []string `json:"tags,omitempty"`
	// 自定义元数据
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HandoffResource 是单个交接请求的 API 视图。
// @Description 交接资源结构
type HandoffResource struct {
	// 交接 ID
	HandoffID string `json:"handoff_id" example:"hoff_4f9d2c1a"`
	// 会话 ID（上下文快照采集后可用）
	SessionID string `json:"session_id,omitempty" example:"sess-1"`
	// 来源 Agent
	SourceAgentID string `json:"source_agent_id" example:"companion"`
	// 目标 Agent
	TargetAgentID string `json:"target_agent_id" example:"analyst"`
	// 当前状态（initiated、in_progress、completed、failed、cancelled）
	Status string `json:"status" example:"completed"`
	// 优先级
	Priority string `json:"priority" example:"normal"`
	// 交接原因
	Reason string `json:"reason,omitempty"`
	// 上下文包是否已持久化并校验
	DurableContext bool `json:"durable_context"`
	// 创建时间
	CreatedAt time.Time `json:"created_at"`
	// 最后状态变更时间
	UpdatedAt time.Time `json:"updated_at"`
	// 终态时间（仅终态请求存在）
	CompletionTime *time.Time `json:"completion_time,omitempty"`
	// 失败或取消原因
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewHandoffResource 将内部交接请求转换为 API 视图。
func NewHandoffResource(req *handoff.HandoffRequest) HandoffResource {
	res := HandoffResource{
		HandoffID:      req.HandoffID,
		SourceAgentID:  req.SourceAgentID,
		TargetAgentID:  req.TargetAgentID,
		Status:         string(req.Status),
		Priority:       string(req.Priority),
		Reason:         req.Reason,
		DurableContext: req.DurableContext,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
		CompletionTime: req.CompletionTime,
		ErrorMessage:   req.ErrorMessage,
	}
	if req.Context != nil {
		res.SessionID = req.Context.SessionID
	}
	return res
}

// HandoffSummary is a type alias for handoff.Summary to avoid duplicate
// definitions. The canonical definition lives in handoff.Summary
// (handoff/types.go).
type HandoffSummary = handoff.Summary

// HandoffListResponse 表示交接列表。
// @Description 交接列表响应
type HandoffListResponse struct {
	// 交接摘要列表
	Handoffs []HandoffSummary `json:"handoffs"`
	// 列表总数
	Count int `json:"count"`
}

// CancelRequest 代表取消交接的请求。
// @Description 交接取消请求
type CancelRequest struct {
	// 取消原因
	Reason string `json:"reason,omitempty" example:"user resumed with source agent"`
}

// CancelResult 表示取消操作的结果。
// @Description 交接取消结果
type CancelResult struct {
	// 交接 ID
	HandoffID string `json:"handoff_id" example:"hoff_4f9d2c1a"`
	// 是否成功取消（终态或未知交接为 false）
	Cancelled bool `json:"cancelled" example:"true"`
}

// =============================================================================
// 上下文水合类型
// =============================================================================

// HydrateRequest 代表目标 Agent 的上下文水合请求。
// @Description 上下文水合请求
type HydrateRequest struct {
	// 请求水合的目标 Agent（必须与交接记录一致）
	TargetAgentID string `json:"target_agent_id" example:"analyst" binding:"required"`
}

// HydratedContext is a type alias for handoff.HydratedContext. The wire
// shape is defined by the handoff package and served verbatim.
type HydratedContext = handoff.HydratedContext

// =============================================================================
// Agent 能力类型
// =============================================================================

// AgentCapability is a type alias for handoff.Capability to avoid duplicate
// definitions. The canonical definition lives in handoff.Capability
// (handoff/registry.go).
type AgentCapability = handoff.Capability

// AgentListResponse 表示已注册 Agent 列表。
// @Description Agent 能力列表响应
type AgentListResponse struct {
	// Agent 能力条目
	Agents []AgentCapability `json:"agents"`
	// 条目总数
	Count int `json:"count"`
}

// =============================================================================
// 事件类型
// =============================================================================

// EventMessage is a type alias for handoff.Event. Lifecycle events are
// streamed to /api/v1/events subscribers in this shape.
type EventMessage = handoff.Event
