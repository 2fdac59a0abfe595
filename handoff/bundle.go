package handoff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/agentrelay/types"
)

// BundleSchemaVersion identifies the persisted bundle layout.
const BundleSchemaVersion = "1"

// TagManifest splits the carried tags by provenance. The preservation
// checksum covers OriginalTags only, so hydration can distinguish what the
// requester asked to preserve from what was derived along the way.
type TagManifest struct {
	OriginalTags            []string `json:"original_tags"`
	AgentSpecificTags       []string `json:"agent_specific_tags,omitempty"`
	HandoffTags             []string `json:"handoff_tags,omitempty"`
	TagPreservationChecksum string   `json:"tag_preservation_checksum"`
}

// WindowManifest is the persisted form of the bounded conversation window.
type WindowManifest struct {
	Messages        []types.Message `json:"messages"`
	MessageCount    int             `json:"message_count"`
	OldestTimestamp *time.Time      `json:"oldest_timestamp,omitempty"`
	NewestTimestamp *time.Time      `json:"newest_timestamp,omitempty"`
}

// MemoryManifest is the persisted form of the carried memory references.
type MemoryManifest struct {
	MemoryReferences []string `json:"memory_references"`
	Count            int      `json:"count"`
}

// ContinuityVerification holds the derived checksum and structural
// fingerprint used for post-write verification.
type ContinuityVerification struct {
	Checksum              string `json:"checksum"`
	StructuralFingerprint string `json:"structural_fingerprint"`
}

// ContextBundle is the durable artifact written per handoff, a superset of
// the gathered HandoffContext.
type ContextBundle struct {
	SchemaVersion string `json:"schema_version"`
	HandoffID     string `json:"handoff_id"`
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id"`
	SourceAgentID string `json:"source_agent_id"`
	TargetAgentID string `json:"target_agent_id"`

	Tags          TagManifest    `json:"tags"`
	LastKMessages WindowManifest `json:"last_k_messages"`
	MemoryRefs    MemoryManifest `json:"memory_refs"`

	AgentSpecificData map[string]any `json:"agent_specific_data,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`

	ContinuityVerification ContinuityVerification `json:"continuity_verification"`

	CreatedAt   time.Time `json:"created_at"`
	PersistedAt time.Time `json:"persisted_at"`
}

// TagChecksum computes the order-independent preservation checksum of a tag
// set: sha256 over the sorted, pipe-joined, deduplicated tags. Any two
// snapshots of the same set hash identically.
func TagChecksum(tags []string) string {
	set := normalizeTags(tags)
	sum := sha256.Sum256([]byte(strings.Join(set, "|")))
	return hex.EncodeToString(sum[:])
}

// normalizeTags returns the sorted, deduplicated copy of tags.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// buildWindowManifest snapshots the bounded message window.
func buildWindowManifest(msgs []types.Message) WindowManifest {
	m := WindowManifest{
		Messages:     msgs,
		MessageCount: len(msgs),
	}
	if len(msgs) > 0 {
		oldest := msgs[0].Timestamp
		newest := msgs[len(msgs)-1].Timestamp
		m.OldestTimestamp = &oldest
		m.NewestTimestamp = &newest
	}
	return m
}

// continuityChecksum derives the bundle continuity checksum from the tag
// checksum and the window shape.
func continuityChecksum(tagChecksum string, window WindowManifest, refCount int) string {
	var oldest, newest int64
	if window.OldestTimestamp != nil {
		oldest = window.OldestTimestamp.UnixNano()
	}
	if window.NewestTimestamp != nil {
		newest = window.NewestTimestamp.UnixNano()
	}
	payload := fmt.Sprintf("%s|%d|%d|%d|%d", tagChecksum, window.MessageCount, oldest, newest, refCount)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// structuralFingerprint summarizes the bundle shape for quick comparison.
func structuralFingerprint(window WindowManifest, tagCount, refCount int) string {
	return fmt.Sprintf("v%s:w%d:t%d:r%d", BundleSchemaVersion, window.MessageCount, tagCount, refCount)
}

// AllTags returns the union of the manifest's tag groups, duplicates
// removed, sorted.
func (t TagManifest) AllTags() []string {
	all := make([]string, 0, len(t.OriginalTags)+len(t.AgentSpecificTags)+len(t.HandoffTags))
	all = append(all, t.OriginalTags...)
	all = append(all, t.AgentSpecificTags...)
	all = append(all, t.HandoffTags...)
	return normalizeTags(all)
}
