// Package types provides the core types shared across the agentrelay module.
// It depends on no other agentrelay package, so anything may import it
// without creating a cycle.
package types

import "time"

// Role identifies who authored a conversation message.
type Role string

const (
	RoleSystem    Role = "system"    // protocol markers, including handoff annotations
	RoleUser      Role = "user"      // end-user turns
	RoleAssistant Role = "assistant" // agent replies, attributed via AgentID
	RoleTool      Role = "tool"      // tool invocation results
)

// Valid reports whether r is one of the known role constants.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message represents a single conversation message inside a multi-agent session.
// AgentID identifies which agent produced an assistant message; it is empty for
// user and system messages.
type Message struct {
	Role      Role      `json:"role"`
	AgentID   string    `json:"agent_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Metadata  any       `json:"metadata,omitempty"`
}

// NewMessage builds a message with the given role and content, stamped with
// the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// NewSystemMessage builds a protocol marker message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage builds an end-user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage builds an unattributed agent reply.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewAgentMessage builds an agent reply attributed to agentID.
func NewAgentMessage(agentID, content string) Message {
	return NewMessage(RoleAssistant, content).WithAgentID(agentID)
}

// WithAgentID attributes the message to an agent.
func (m Message) WithAgentID(agentID string) Message {
	m.AgentID = agentID
	return m
}

// WithMetadata attaches free-form metadata to the message.
func (m Message) WithMetadata(metadata any) Message {
	m.Metadata = metadata
	return m
}

// WithTimestamp overrides the message timestamp.
func (m Message) WithTimestamp(ts time.Time) Message {
	m.Timestamp = ts
	return m
}
