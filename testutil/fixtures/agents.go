// =============================================================================
// 🤖 Agent 能力与会话测试夹具
// =============================================================================
// 提供预定义的 Agent 能力表、会话消息窗口与交接请求，
// 供 e2e 与集成测试直接取用。
//
// 使用方法:
//
//	registry := handoff.NewCapabilityRegistry(fixtures.StandardAgents()...)
//	opts := fixtures.CompanionToAnalyst("tok-1")
// =============================================================================
package fixtures

import (
	"fmt"
	"time"

	"github.com/BaSui01/agentrelay/handoff"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 🗂️ 能力表夹具
// =============================================================================

// StandardAgents 返回标准的三 Agent 能力表：
// companion 可发起可接收，analyst 只接收，observer 只发起。
func StandardAgents() []handoff.Capability {
	return []handoff.Capability{
		{
			AgentID:         "companion",
			DisplayName:     "陪伴 Agent",
			Specialties:     []string{"conversation", "mood"},
			CanInitiate:     true,
			AcceptsHandoffs: true,
		},
		{
			AgentID:               "analyst",
			DisplayName:           "行为分析 Agent",
			Specialties:           []string{"sleep", "behavior"},
			AcceptsHandoffs:       true,
			RequiredContextFields: []string{"mood_summary"},
		},
		{
			AgentID:     "observer",
			DisplayName: "观察 Agent",
			CanInitiate: true,
		},
	}
}

// RelayChainAgents 返回一条 n 个节点的接力链：每个 Agent 都可发起可接收。
func RelayChainAgents(n int) []handoff.Capability {
	caps := make([]handoff.Capability, 0, n)
	for i := 0; i < n; i++ {
		caps = append(caps, handoff.Capability{
			AgentID:         fmt.Sprintf("relay-%d", i),
			DisplayName:     fmt.Sprintf("Relay %d", i),
			CanInitiate:     true,
			AcceptsHandoffs: true,
		})
	}
	return caps
}

// =============================================================================
// 💬 会话消息夹具
// =============================================================================

// ConversationWindow 返回 n 条交替的 user/assistant 消息，时间戳递增。
func ConversationWindow(n int) []types.Message {
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	msgs := make([]types.Message, 0, n)
	for i := 0; i < n; i++ {
		msg := types.Message{
			Role:      types.RoleUser,
			Content:   fmt.Sprintf("user message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if i%2 == 1 {
			msg.Role = types.RoleAssistant
			msg.AgentID = "companion"
			msg.Content = fmt.Sprintf("assistant reply %d", i)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// =============================================================================
// 🔄 交接请求夹具
// =============================================================================

// CompanionToAnalyst 返回一个标准的 companion -> analyst 交接请求。
func CompanionToAnalyst(sessionToken string) handoff.InitiateOptions {
	return handoff.InitiateOptions{
		SourceAgentID: "companion",
		TargetAgentID: "analyst",
		SessionToken:  sessionToken,
		Reason:        "needs behavioral analysis",
		Priority:      handoff.PriorityNormal,
		Tags:          []string{"mood", "sleep"},
		Metadata:      map[string]any{"requested_by": "user-1"},
	}
}

// ChainHop 返回接力链上从 relay-i 到 relay-(i+1) 的交接请求。
func ChainHop(sessionToken string, i int) handoff.InitiateOptions {
	return handoff.InitiateOptions{
		SourceAgentID: fmt.Sprintf("relay-%d", i),
		TargetAgentID: fmt.Sprintf("relay-%d", i+1),
		SessionToken:  sessionToken,
		Reason:        fmt.Sprintf("hop %d", i),
		Priority:      handoff.PriorityNormal,
	}
}
