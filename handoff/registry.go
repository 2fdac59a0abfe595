package handoff

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Capability describes one agent identity in the registry.
type Capability struct {
	AgentID     string   `json:"agent_id" yaml:"agent_id"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Specialties []string `json:"specialties,omitempty" yaml:"specialties,omitempty"`

	// AcceptsHandoffs marks the agent as a valid handoff target.
	AcceptsHandoffs bool `json:"accepts_handoffs" yaml:"accepts_handoffs"`

	// CanInitiate marks the agent as a valid handoff source.
	CanInitiate bool `json:"can_initiate" yaml:"can_initiate"`

	// RequiredContextFields lists the context fields this agent expects to
	// receive. Informational; the registry guards on the identity pair
	// only, never on handoff content.
	RequiredContextFields []string `json:"required_context_fields,omitempty" yaml:"required_context_fields,omitempty"`
}

// CapabilityRegistry is the static per-agent capability table. It is
// immutable after construction and safe for concurrent reads.
type CapabilityRegistry struct {
	caps map[string]Capability
}

// NewCapabilityRegistry builds a registry from the given capabilities.
// Later entries with a duplicate AgentID overwrite earlier ones.
func NewCapabilityRegistry(caps ...Capability) *CapabilityRegistry {
	m := make(map[string]Capability, len(caps))
	for _, c := range caps {
		if c.AgentID == "" {
			continue
		}
		m[c.AgentID] = c
	}
	return &CapabilityRegistry{caps: m}
}

// Lookup returns the capability entry for agentID.
func (r *CapabilityRegistry) Lookup(agentID string) (Capability, bool) {
	c, ok := r.caps[agentID]
	return c, ok
}

// Agents returns all registered agent ids, sorted.
func (r *CapabilityRegistry) Agents() []string {
	ids := make([]string, 0, len(r.caps))
	for id := range r.caps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadCapabilitiesFile reads agent capabilities from a YAML file of the
// form:
//
//	agents:
//	  - agent_id: companion
//	    display_name: Companion
//	    can_initiate: true
//	    accepts_handoffs: true
func LoadCapabilitiesFile(path string) ([]Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capabilities file: %w", err)
	}
	var file struct {
		Agents []Capability `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse capabilities file: %w", err)
	}
	for i, c := range file.Agents {
		if c.AgentID == "" {
			return nil, fmt.Errorf("capabilities file: agent %d has empty agent_id", i)
		}
	}
	return file.Agents, nil
}

// ValidatePair checks that source may initiate and target may accept a
// handoff. Violations never create a request.
func (r *CapabilityRegistry) ValidatePair(sourceAgentID, targetAgentID string) error {
	source, ok := r.Lookup(sourceAgentID)
	if !ok {
		return newError(KindRejectedInitiation, "validate", "unknown source agent: "+sourceAgentID)
	}
	target, ok := r.Lookup(targetAgentID)
	if !ok {
		return newError(KindRejectedInitiation, "validate", "unknown target agent: "+targetAgentID)
	}
	if !source.CanInitiate {
		return newError(KindRejectedInitiation, "validate", "agent cannot initiate handoffs: "+sourceAgentID)
	}
	if !target.AcceptsHandoffs {
		return newError(KindRejectedInitiation, "validate", "agent does not accept handoffs: "+targetAgentID)
	}
	return nil
}
