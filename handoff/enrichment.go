package handoff

import (
	"context"

	"github.com/BaSui01/agentrelay/session"
	"github.com/BaSui01/agentrelay/types"
)

// PairKey identifies a directed (source, target) agent pair.
type PairKey struct {
	SourceAgentID string
	TargetAgentID string
}

// EnrichmentResult is what a pair enricher contributes to the gathered
// context.
type EnrichmentResult struct {
	// Data is merged into the context's agent-specific data.
	Data map[string]any

	// Tags are appended to the caller-supplied tag set.
	Tags []string

	// MemoryReferences are opaque memory-store ids to carry along.
	MemoryReferences []string
}

// Enricher computes agent-pair-specific signals from the session snapshot.
type Enricher interface {
	Enrich(ctx context.Context, sess *session.Session, window []types.Message) (EnrichmentResult, error)
}

// EnrichFunc adapts a function to the Enricher interface.
type EnrichFunc func(ctx context.Context, sess *session.Session, window []types.Message) (EnrichmentResult, error)

// Enrich implements Enricher.
func (f EnrichFunc) Enrich(ctx context.Context, sess *session.Session, window []types.Message) (EnrichmentResult, error) {
	return f(ctx, sess, window)
}

// EnrichmentTable is the typed lookup table of pair enrichers, resolved
// once at startup. Unmatched pairs get an empty enrichment, not an error.
type EnrichmentTable struct {
	entries map[PairKey]Enricher
}

// NewEnrichmentTable creates an empty table.
func NewEnrichmentTable() *EnrichmentTable {
	return &EnrichmentTable{entries: make(map[PairKey]Enricher)}
}

// Register binds an enricher to the directed (source, target) pair.
// Registration happens at startup; the table is read-only afterwards.
func (t *EnrichmentTable) Register(sourceAgentID, targetAgentID string, e Enricher) *EnrichmentTable {
	t.entries[PairKey{SourceAgentID: sourceAgentID, TargetAgentID: targetAgentID}] = e
	return t
}

// RegisterFunc binds a function enricher to the pair.
func (t *EnrichmentTable) RegisterFunc(sourceAgentID, targetAgentID string, f EnrichFunc) *EnrichmentTable {
	return t.Register(sourceAgentID, targetAgentID, f)
}

// Resolve returns the enricher for the pair, if any.
func (t *EnrichmentTable) Resolve(sourceAgentID, targetAgentID string) (Enricher, bool) {
	e, ok := t.entries[PairKey{SourceAgentID: sourceAgentID, TargetAgentID: targetAgentID}]
	return e, ok
}

// Len reports the number of registered pairs.
func (t *EnrichmentTable) Len() int {
	return len(t.entries)
}
