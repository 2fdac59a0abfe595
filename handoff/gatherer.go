package handoff

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentrelay/session"
	"github.com/BaSui01/agentrelay/types"
)

// DefaultWindowSize is the bounded conversation window size K.
const DefaultWindowSize = 20

// ContextGatherer builds HandoffContext snapshots from the session store.
type ContextGatherer struct {
	sessions   session.Store
	enrichment *EnrichmentTable
	windowSize int
	counter    types.TokenCounter
	logger     *zap.Logger
}

// NewContextGatherer creates a gatherer. windowSize <= 0 falls back to
// DefaultWindowSize; a nil enrichment table means no pair enrichment.
func NewContextGatherer(sessions session.Store, enrichment *EnrichmentTable, windowSize int, logger *zap.Logger) *ContextGatherer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if enrichment == nil {
		enrichment = NewEnrichmentTable()
	}
	return &ContextGatherer{
		sessions:   sessions,
		enrichment: enrichment,
		windowSize: windowSize,
		logger:     logger.With(zap.String("component", "context_gatherer")),
	}
}

// WithTokenCounter attaches an optional token counter; when set, the
// gathered metadata records the approximate window token size.
func (g *ContextGatherer) WithTokenCounter(c types.TokenCounter) *ContextGatherer {
	g.counter = c
	return g
}

// WindowSize returns the configured bound K.
func (g *ContextGatherer) WindowSize() int {
	return g.windowSize
}

// Gather snapshots the session into a fresh HandoffContext. A session that
// cannot be resolved fails fast: the handoff is never created and the error
// carries KindRejectedInitiation.
func (g *ContextGatherer) Gather(ctx context.Context, sessionToken, sourceAgentID, targetAgentID string, tags []string) (*HandoffContext, error) {
	var (
		sess   *session.Session
		window []types.Message
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		sess, err = g.sessions.GetSession(egCtx, sessionToken)
		return err
	})
	eg.Go(func() error {
		var err error
		window, err = g.sessions.GetRecentContext(egCtx, sessionToken, g.windowSize)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, wrapError(KindRejectedInitiation, "gather", "session could not be resolved", err)
	}

	window = boundWindow(window, g.windowSize)

	result := EnrichmentResult{}
	if enricher, ok := g.enrichment.Resolve(sourceAgentID, targetAgentID); ok {
		var err error
		result, err = enricher.Enrich(ctx, sess, window)
		if err != nil {
			return nil, wrapError(KindRejectedInitiation, "gather",
				fmt.Sprintf("enrichment failed for pair %s->%s", sourceAgentID, targetAgentID), err)
		}
	}

	originalTags := append([]string(nil), tags...)
	allTags := appendTags(originalTags, result.Tags)

	metadata := map[string]any{
		"handoff_type":         fmt.Sprintf("%s->%s", sourceAgentID, targetAgentID),
		"gathering_timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"window_size":          g.windowSize,
		"window_message_count": len(window),
	}
	if g.counter != nil {
		metadata["approx_window_tokens"] = countWindowTokens(g.counter, window)
	}

	hctx := &HandoffContext{
		SessionID:          sess.ID,
		UserID:             sess.UserID,
		ConversationWindow: window,
		AgentSpecificData:  result.Data,
		MemoryReferences:   append([]string(nil), result.MemoryReferences...),
		Tags:               allTags,
		OriginalTags:       originalTags,
		DerivedTags:        append([]string(nil), result.Tags...),
		Metadata:           metadata,
		CreatedAt:          time.Now(),
	}

	g.logger.Debug("context gathered",
		zap.String("session_id", sess.ID),
		zap.String("source_agent_id", sourceAgentID),
		zap.String("target_agent_id", targetAgentID),
		zap.Int("window_messages", len(window)),
		zap.Int("tags", len(allTags)))

	return hctx, nil
}

// boundWindow keeps the most recent max messages.
func boundWindow(msgs []types.Message, max int) []types.Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}

// appendTags unions extra into base preserving first-occurrence order.
func appendTags(base, extra []string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]struct{}, len(out))
	for _, t := range out {
		seen[t] = struct{}{}
	}
	for _, t := range extra {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// countWindowTokens totals the window content tokens.
func countWindowTokens(counter types.TokenCounter, msgs []types.Message) int {
	total := 0
	for _, m := range msgs {
		total += counter.CountTokens(m.Content)
	}
	return total
}
