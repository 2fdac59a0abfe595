package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/vault"
)

// BundlePath returns the vault path for a handoff bundle, namespaced by
// session so all bundles of one conversation sit under one prefix.
func BundlePath(sessionID, handoffID string) string {
	return fmt.Sprintf("handoffs/%s/%s", sessionID, handoffID)
}

// VerificationResult reports the post-write read-back checks.
type VerificationResult struct {
	TagParityVerified  bool `json:"tag_parity_verified"`
	ContinuityVerified bool `json:"continuity_verified"`
	LastKVerified      bool `json:"last_k_verified"`
}

// OK reports whether every check passed.
func (v VerificationResult) OK() bool {
	return v.TagParityVerified && v.ContinuityVerified && v.LastKVerified
}

// BundlePersister writes context bundles to the vault and verifies each
// write by reading it back. Vault unavailability degrades the handoff
// instead of failing it; a checksum mismatch on read-back fails it hard.
type BundlePersister struct {
	vault  vault.Vault
	logger *zap.Logger
}

// NewBundlePersister creates a persister over the given vault.
func NewBundlePersister(v vault.Vault, logger *zap.Logger) *BundlePersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BundlePersister{
		vault:  v,
		logger: logger.With(zap.String("component", "bundle_persister")),
	}
}

// BuildBundle derives the durable bundle from a request. The preservation
// checksum covers the caller-supplied original tags only; protocol tags
// added here never affect it.
func BuildBundle(req *HandoffRequest) *ContextBundle {
	hctx := req.Context

	tags := TagManifest{
		OriginalTags:      append([]string(nil), hctx.OriginalTags...),
		AgentSpecificTags: append([]string(nil), hctx.DerivedTags...),
		HandoffTags: []string{
			"handoff:" + req.SourceAgentID + "->" + req.TargetAgentID,
			"priority:" + string(req.Priority),
		},
		TagPreservationChecksum: TagChecksum(hctx.OriginalTags),
	}

	window := buildWindowManifest(hctx.ConversationWindow)
	memory := MemoryManifest{
		MemoryReferences: append([]string(nil), hctx.MemoryReferences...),
		Count:            len(hctx.MemoryReferences),
	}

	return &ContextBundle{
		SchemaVersion: BundleSchemaVersion,
		HandoffID:     req.HandoffID,
		SessionID:     hctx.SessionID,
		UserID:        hctx.UserID,
		SourceAgentID: req.SourceAgentID,
		TargetAgentID: req.TargetAgentID,
		Tags:          tags,
		LastKMessages: window,
		MemoryRefs:    memory,

		AgentSpecificData: hctx.AgentSpecificData,
		Metadata:          hctx.Metadata,

		ContinuityVerification: ContinuityVerification{
			Checksum:              continuityChecksum(tags.TagPreservationChecksum, window, memory.Count),
			StructuralFingerprint: structuralFingerprint(window, len(tags.AllTags()), memory.Count),
		},

		CreatedAt: hctx.CreatedAt,
	}
}

// Persist writes the bundle for req and verifies it by reading it back.
// Returns the bundle, the verification result, and an error classified as
// KindPersistenceDegraded (write or read-back unavailable) or
// KindVerificationFailure (read-back did not match what was written).
func (p *BundlePersister) Persist(ctx context.Context, req *HandoffRequest) (*ContextBundle, VerificationResult, error) {
	bundle := BuildBundle(req)
	bundle.PersistedAt = time.Now()

	path := BundlePath(bundle.SessionID, bundle.HandoffID)

	payload, err := json.Marshal(bundle)
	if err != nil {
		return bundle, VerificationResult{}, wrapError(KindPersistenceDegraded, "persist", "bundle could not be encoded", err)
	}

	metadata := map[string]string{
		"handoff_id":     bundle.HandoffID,
		"session_id":     bundle.SessionID,
		"schema_version": bundle.SchemaVersion,
	}
	if err := p.vault.Store(ctx, path, payload, metadata); err != nil {
		p.logger.Warn("vault write failed, handoff continues without durable context",
			zap.String("handoff_id", bundle.HandoffID),
			zap.String("path", path),
			zap.Error(err))
		return bundle, VerificationResult{}, wrapError(KindPersistenceDegraded, "persist", "vault write failed", err)
	}

	stored, err := p.readBundle(ctx, path)
	if err != nil {
		// Retrieval problems on verify are availability problems, not
		// evidence of corruption.
		p.logger.Warn("bundle read-back failed, handoff continues without durable context",
			zap.String("handoff_id", bundle.HandoffID),
			zap.String("path", path),
			zap.Error(err))
		return bundle, VerificationResult{}, wrapError(KindPersistenceDegraded, "persist", "bundle read-back failed", err)
	}

	verify := verifyBundle(bundle, stored)
	if !verify.OK() {
		p.logger.Error("bundle verification failed",
			zap.String("handoff_id", bundle.HandoffID),
			zap.String("path", path),
			zap.Bool("tag_parity", verify.TagParityVerified),
			zap.Bool("continuity", verify.ContinuityVerified),
			zap.Bool("last_k", verify.LastKVerified))
		return bundle, verify, newError(KindVerificationFailure, "persist", "read-back bundle does not match written context")
	}

	p.logger.Debug("bundle persisted and verified",
		zap.String("handoff_id", bundle.HandoffID),
		zap.String("path", path),
		zap.Int("window_messages", bundle.LastKMessages.MessageCount))
	return bundle, verify, nil
}

// Load retrieves and decodes the bundle for a handoff. A missing bundle
// maps to KindPersistenceDegraded: the handoff happened, its context did
// not survive.
func (p *BundlePersister) Load(ctx context.Context, sessionID, handoffID string) (*ContextBundle, error) {
	path := BundlePath(sessionID, handoffID)
	bundle, err := p.readBundle(ctx, path)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return nil, wrapError(KindPersistenceDegraded, "load", "no durable bundle for handoff "+handoffID, err)
		}
		return nil, wrapError(KindPersistenceDegraded, "load", "bundle retrieval failed", err)
	}
	return bundle, nil
}

// readBundle fetches and decodes one bundle from the vault.
func (p *BundlePersister) readBundle(ctx context.Context, path string) (*ContextBundle, error) {
	raw, err := p.vault.Retrieve(ctx, path)
	if err != nil {
		return nil, err
	}
	var bundle ContextBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("decode bundle at %s: %w", path, err)
	}
	return &bundle, nil
}

// verifyBundle compares the read-back bundle against what was written and
// recomputes the derived checksums from the read-back content.
func verifyBundle(written, stored *ContextBundle) VerificationResult {
	var v VerificationResult

	storedTagSum := TagChecksum(stored.Tags.OriginalTags)
	v.TagParityVerified = storedTagSum == stored.Tags.TagPreservationChecksum &&
		storedTagSum == written.Tags.TagPreservationChecksum

	storedContinuity := continuityChecksum(stored.Tags.TagPreservationChecksum, stored.LastKMessages, stored.MemoryRefs.Count)
	v.ContinuityVerified = storedContinuity == stored.ContinuityVerification.Checksum &&
		storedContinuity == written.ContinuityVerification.Checksum

	v.LastKVerified = stored.LastKMessages.MessageCount == written.LastKMessages.MessageCount &&
		stored.ContinuityVerification.StructuralFingerprint == written.ContinuityVerification.StructuralFingerprint

	return v
}
