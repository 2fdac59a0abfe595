package handoff

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// HydratedContext is the reconstructed view handed to a target agent after
// verification. It carries only what survived the round trip: the verified
// tag manifest, the stored window, memory references, and continuity
// metadata. Agent-specific data flows through the session context update
// during transfer, not through hydration.
type HydratedContext struct {
	HandoffID     string `json:"handoff_id"`
	SessionID     string `json:"session_id"`
	SourceAgentID string `json:"source_agent_id"`
	TargetAgentID string `json:"target_agent_id"`

	VerifiedTags     TagManifest            `json:"verified_tags"`
	Window           WindowManifest         `json:"window"`
	MemoryReferences []string               `json:"memory_references"`
	Continuity       ContinuityVerification `json:"continuity"`

	HydratedAt time.Time `json:"hydrated_at"`
}

// ContextHydrator rebuilds target-agent context from persisted bundles.
// Hydration is all-or-nothing: any retrieval or parity failure returns an
// error and no partial context.
type ContextHydrator struct {
	persister *BundlePersister
	group     singleflight.Group
	logger    *zap.Logger
}

// NewContextHydrator creates a hydrator reading through the given
// persister.
func NewContextHydrator(persister *BundlePersister, logger *zap.Logger) *ContextHydrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextHydrator{
		persister: persister,
		logger:    logger.With(zap.String("component", "context_hydrator")),
	}
}

// Hydrate loads the bundle for req, re-verifies tag parity against the
// request's own original tags, and returns the reconstructed context.
// Concurrent hydrations of the same handoff share a single vault read.
func (h *ContextHydrator) Hydrate(ctx context.Context, req *HandoffRequest, targetAgentID string) (*HydratedContext, error) {
	if req.TargetAgentID != targetAgentID {
		return nil, newError(KindUnknownHandoff, "hydrate",
			"handoff "+req.HandoffID+" is not addressed to agent "+targetAgentID)
	}

	v, err, _ := h.group.Do(req.HandoffID, func() (any, error) {
		return h.persister.Load(ctx, req.Context.SessionID, req.HandoffID)
	})
	if err != nil {
		return nil, err
	}
	bundle := v.(*ContextBundle)

	// Parity is recomputed from the request side, not trusted from the
	// stored manifest alone.
	expected := TagChecksum(req.Context.OriginalTags)
	stored := bundle.Tags.TagPreservationChecksum
	if expected != stored || TagChecksum(bundle.Tags.OriginalTags) != stored {
		h.logger.Error("tag parity verification failed",
			zap.String("handoff_id", req.HandoffID),
			zap.String("expected_checksum", expected),
			zap.String("stored_checksum", stored))
		return nil, newError(KindVerificationFailure, "hydrate", "tag parity verification failed for handoff "+req.HandoffID)
	}

	hydrated := &HydratedContext{
		HandoffID:        bundle.HandoffID,
		SessionID:        bundle.SessionID,
		SourceAgentID:    bundle.SourceAgentID,
		TargetAgentID:    bundle.TargetAgentID,
		VerifiedTags:     bundle.Tags,
		Window:           bundle.LastKMessages,
		MemoryReferences: append([]string(nil), bundle.MemoryRefs.MemoryReferences...),
		Continuity:       bundle.ContinuityVerification,
		HydratedAt:       time.Now(),
	}

	h.logger.Debug("context hydrated",
		zap.String("handoff_id", req.HandoffID),
		zap.String("target_agent_id", targetAgentID),
		zap.Int("window_messages", hydrated.Window.MessageCount))

	return hydrated, nil
}
