package handoff

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/internal/pool"
	"github.com/BaSui01/agentrelay/session"
	"github.com/BaSui01/agentrelay/types"
)

const instrumentationName = "github.com/BaSui01/agentrelay/handoff"

// subscriptionCounter generates unique subscription ids.
var subscriptionCounter int64

// MetricsRecorder receives handoff lifecycle measurements. A nil recorder
// on the orchestrator disables recording.
type MetricsRecorder interface {
	RecordInitiation(sourceAgentID, targetAgentID, outcome string)
	RecordCompletion(sourceAgentID, targetAgentID string, status HandoffStatus, durable bool, elapsed time.Duration)
	RecordHydration(targetAgentID, outcome string)
	SetActiveHandoffs(count int)
}

// nopMetrics is the recorder used when none is configured.
type nopMetrics struct{}

func (nopMetrics) RecordInitiation(string, string, string)                             {}
func (nopMetrics) RecordCompletion(string, string, HandoffStatus, bool, time.Duration) {}
func (nopMetrics) RecordHydration(string, string)                                      {}
func (nopMetrics) SetActiveHandoffs(int)                                               {}

// InitiateOptions configures one handoff attempt.
type InitiateOptions struct {
	SourceAgentID string
	TargetAgentID string
	SessionToken  string
	Reason        string
	Priority      Priority
	Tags          []string
	Metadata      map[string]any
}

// Orchestrator owns the handoff state machine. Construct one instance at
// service start and inject it into callers; it holds the active-request
// table, retires terminal requests into a bounded history, and never
// leaves a processed request in a non-terminal state.
type Orchestrator struct {
	registry  *CapabilityRegistry
	gatherer  *ContextGatherer
	persister *BundlePersister
	hydrator  *ContextHydrator
	sessions  session.Store

	mu      sync.RWMutex
	active  map[string]*HandoffRequest
	history *historyLog

	subMu       sync.RWMutex
	subscribers map[string]func(Event)

	dispatch *pool.GoroutinePool

	audit   AuditSink
	metrics MetricsRecorder
	tracer  oteltrace.Tracer
	logger  *zap.Logger
}

// NewOrchestrator creates an orchestrator over its collaborators.
func NewOrchestrator(registry *CapabilityRegistry, gatherer *ContextGatherer, persister *BundlePersister, hydrator *ContextHydrator, sessions session.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "handoff_orchestrator"))
	return &Orchestrator{
		registry:    registry,
		gatherer:    gatherer,
		persister:   persister,
		hydrator:    hydrator,
		sessions:    sessions,
		active:      make(map[string]*HandoffRequest),
		history:     newHistoryLog(DefaultHistoryLimit),
		subscribers: make(map[string]func(Event)),
		dispatch: pool.NewGoroutinePool(pool.GoroutinePoolConfig{
			MaxWorkers:  32,
			QueueSize:   256,
			IdleTimeout: 30 * time.Second,
			PanicHandler: func(r any) {
				log.Error("event subscriber panicked", zap.Any("panic", r))
			},
		}),
		metrics: nopMetrics{},
		tracer:  otel.Tracer(instrumentationName),
		logger:  log,
	}
}

// WithAuditSink attaches a durable audit sink for retired requests.
func (o *Orchestrator) WithAuditSink(sink AuditSink) *Orchestrator {
	o.audit = sink
	return o
}

// WithMetrics attaches a metrics recorder.
func (o *Orchestrator) WithMetrics(m MetricsRecorder) *Orchestrator {
	if m != nil {
		o.metrics = m
	}
	return o
}

// WithHistoryLimit bounds the retained terminal-request history.
func (o *Orchestrator) WithHistoryLimit(limit int) *Orchestrator {
	o.history = newHistoryLog(limit)
	return o
}

// Registry exposes the capability registry for read-only lookups.
func (o *Orchestrator) Registry() *CapabilityRegistry {
	return o.registry
}

// InitiateHandoff validates, gathers, and processes one handoff
// synchronously. The returned id is empty exactly when initiation was
// rejected: a rejected pair or an unresolved session never allocates a
// request. A non-empty id with a non-nil error means the request exists
// and reached FAILED.
func (o *Orchestrator) InitiateHandoff(ctx context.Context, opts InitiateOptions) (string, error) {
	ctx, span := o.tracer.Start(ctx, "handoff.initiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("handoff.source_agent_id", opts.SourceAgentID),
		attribute.String("handoff.target_agent_id", opts.TargetAgentID),
	)

	if err := o.registry.ValidatePair(opts.SourceAgentID, opts.TargetAgentID); err != nil {
		o.metrics.RecordInitiation(opts.SourceAgentID, opts.TargetAgentID, "rejected")
		o.logger.Warn("handoff rejected",
			zap.String("source_agent_id", opts.SourceAgentID),
			zap.String("target_agent_id", opts.TargetAgentID),
			zap.Error(err))
		span.SetAttributes(attribute.String("error", err.Error()))
		return "", err
	}

	priority := opts.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		err := newError(KindRejectedInitiation, "initiate", "invalid priority "+string(priority))
		o.metrics.RecordInitiation(opts.SourceAgentID, opts.TargetAgentID, "rejected")
		span.SetAttributes(attribute.String("error", err.Error()))
		return "", err
	}

	hctx, err := o.gatherer.Gather(ctx, opts.SessionToken, opts.SourceAgentID, opts.TargetAgentID, opts.Tags)
	if err != nil {
		o.metrics.RecordInitiation(opts.SourceAgentID, opts.TargetAgentID, "rejected")
		span.SetAttributes(attribute.String("error", err.Error()))
		return "", err
	}
	mergeMetadata(hctx, opts.Metadata)
	if capability, ok := o.registry.Lookup(opts.TargetAgentID); ok && len(capability.RequiredContextFields) > 0 {
		hctx.Metadata["required_context_fields"] = append([]string(nil), capability.RequiredContextFields...)
	}

	now := time.Now()
	req := &HandoffRequest{
		HandoffID:     newHandoffID(),
		SourceAgentID: opts.SourceAgentID,
		TargetAgentID: opts.TargetAgentID,
		SessionToken:  opts.SessionToken,
		Context:       hctx,
		Reason:        opts.Reason,
		Priority:      priority,
		Status:        StatusInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	o.mu.Lock()
	o.active[req.HandoffID] = req
	activeCount := len(o.active)
	ev := eventOf(req)
	o.mu.Unlock()

	o.metrics.RecordInitiation(opts.SourceAgentID, opts.TargetAgentID, "accepted")
	o.metrics.SetActiveHandoffs(activeCount)
	span.SetAttributes(attribute.String("handoff.id", req.HandoffID))
	o.logger.Info("handoff initiated",
		zap.String("handoff_id", req.HandoffID),
		zap.String("source_agent_id", req.SourceAgentID),
		zap.String("target_agent_id", req.TargetAgentID),
		zap.String("priority", string(req.Priority)))
	o.emit(ev)

	if perr := o.process(ctx, req); perr != nil {
		span.SetAttributes(attribute.String("error", perr.Error()))
		return req.HandoffID, perr
	}
	return req.HandoffID, nil
}

// process drives a request from INITIATED to a terminal state. A panic in
// any step is caught and mapped to FAILED; process never returns with the
// request non-terminal.
func (o *Orchestrator) process(ctx context.Context, req *HandoffRequest) (err error) {
	ctx, span := o.tracer.Start(ctx, "handoff.process")
	defer span.End()
	span.SetAttributes(attribute.String("handoff.id", req.HandoffID))

	defer func() {
		if r := recover(); r != nil {
			err = newError(KindTransferFailure, "process", fmt.Sprintf("panic during handoff processing: %v", r))
			o.logger.Error("panic during handoff processing",
				zap.String("handoff_id", req.HandoffID),
				zap.Any("panic", r))
		}
		o.mu.RLock()
		terminal := req.Status.IsTerminal()
		o.mu.RUnlock()
		if !terminal {
			msg := "handoff processing ended without terminal status"
			if err != nil {
				msg = err.Error()
			}
			o.finalize(ctx, req, StatusFailed, msg, false)
		}
	}()

	ev, ok := o.advance(req, StatusInProgress)
	if !ok {
		// Cancelled between creation and processing.
		return nil
	}
	o.emit(ev)

	if terr := o.transferContext(ctx, req); terr != nil {
		o.finalize(ctx, req, StatusFailed, terr.Error(), false)
		return terr
	}

	_, _, perr := o.persister.Persist(ctx, req)
	switch {
	case perr == nil:
		if o.finalize(ctx, req, StatusCompleted, "", true) {
			o.recordHandoffMarker(ctx, req)
		}
		return nil
	case IsPersistenceDegraded(perr):
		// Conversational continuity wins over durability: the transfer
		// already happened, so the handoff completes without a bundle.
		o.logger.Warn("handoff completed without durable context",
			zap.String("handoff_id", req.HandoffID),
			zap.Error(perr))
		if o.finalize(ctx, req, StatusCompleted, "", false) {
			o.recordHandoffMarker(ctx, req)
		}
		return nil
	default:
		o.finalize(ctx, req, StatusFailed, perr.Error(), false)
		return perr
	}
}

// transferContext hands the conversational turn and the gathered context
// from source to target. Release, propagate, and request run in strict
// sequence. If propagation fails after the turn was released, the turn is
// re-granted to the source on a best-effort basis before failing.
func (o *Orchestrator) transferContext(ctx context.Context, req *HandoffRequest) error {
	ctx, span := o.tracer.Start(ctx, "handoff.transfer")
	defer span.End()
	token := req.SessionToken

	if err := o.sessions.ReleaseTurn(ctx, token, req.SourceAgentID); err != nil {
		return wrapError(KindTransferFailure, "transfer", "turn release for source agent failed", err)
	}

	update := map[string]any{
		"active_handoff_id":       req.HandoffID,
		"handoff_source_agent_id": req.SourceAgentID,
		"handoff_target_agent_id": req.TargetAgentID,
		"handoff_context":         req.Context,
		"handoff_tags":            req.Context.Tags,
	}
	if err := o.sessions.PropagateContext(ctx, token, update); err != nil {
		if rerr := o.sessions.RequestTurn(ctx, token, req.SourceAgentID); rerr != nil {
			o.logger.Error("turn re-grant after propagation failure also failed, turn left released",
				zap.String("handoff_id", req.HandoffID),
				zap.String("source_agent_id", req.SourceAgentID),
				zap.NamedError("propagate_error", err),
				zap.NamedError("regrant_error", rerr))
		} else {
			o.logger.Warn("context propagation failed, turn re-granted to source",
				zap.String("handoff_id", req.HandoffID),
				zap.String("source_agent_id", req.SourceAgentID),
				zap.Error(err))
		}
		return wrapError(KindTransferFailure, "transfer", "context propagation failed", err)
	}

	if err := o.sessions.RequestTurn(ctx, token, req.TargetAgentID); err != nil {
		return wrapError(KindTransferFailure, "transfer", "turn request for target agent failed", err)
	}
	return nil
}

// recordHandoffMarker appends a system message marking the completed
// transfer. Best effort: the handoff outcome is already decided.
func (o *Orchestrator) recordHandoffMarker(ctx context.Context, req *HandoffRequest) {
	content := fmt.Sprintf("handoff %s: control transferred from %s to %s", req.HandoffID, req.SourceAgentID, req.TargetAgentID)
	if err := o.sessions.AddMessage(ctx, req.SessionToken, req.TargetAgentID, types.RoleSystem, content); err != nil {
		o.logger.Warn("handoff marker message not recorded",
			zap.String("handoff_id", req.HandoffID),
			zap.Error(err))
	}
}

// GetHandoffStatus returns a copy of the tracked request, active or
// retired.
func (o *Orchestrator) GetHandoffStatus(handoffID string) (*HandoffRequest, error) {
	o.mu.RLock()
	if req, ok := o.active[handoffID]; ok {
		out := req.Clone()
		o.mu.RUnlock()
		return out, nil
	}
	o.mu.RUnlock()

	if req, ok := o.history.get(handoffID); ok {
		return req.Clone(), nil
	}
	return nil, newError(KindUnknownHandoff, "status", "unknown handoff id "+handoffID)
}

// CancelHandoff cancels a non-terminal request. Returns false for unknown
// ids and for requests already in a terminal state; their status is left
// untouched. No in-flight transfer step is aborted.
func (o *Orchestrator) CancelHandoff(ctx context.Context, handoffID, reason string) bool {
	o.mu.RLock()
	req, ok := o.active[handoffID]
	o.mu.RUnlock()
	if !ok {
		o.logger.Debug("cancel ignored for unknown or retired handoff", zap.String("handoff_id", handoffID))
		return false
	}

	if !o.finalize(ctx, req, StatusCancelled, reason, false) {
		return false
	}
	o.logger.Info("handoff cancelled",
		zap.String("handoff_id", handoffID),
		zap.String("reason", reason))
	return true
}

// HydrateTargetAgentContext reconstructs the persisted context for the
// target agent of a tracked handoff. Unknown ids fail with
// KindUnknownHandoff; parity mismatches fail with KindVerificationFailure
// and hand back nothing.
func (o *Orchestrator) HydrateTargetAgentContext(ctx context.Context, handoffID, targetAgentID string) (*HydratedContext, error) {
	ctx, span := o.tracer.Start(ctx, "handoff.hydrate")
	defer span.End()
	span.SetAttributes(
		attribute.String("handoff.id", handoffID),
		attribute.String("handoff.target_agent_id", targetAgentID),
	)

	o.mu.RLock()
	req, ok := o.active[handoffID]
	o.mu.RUnlock()
	if !ok {
		req, ok = o.history.get(handoffID)
	}
	if !ok {
		o.metrics.RecordHydration(targetAgentID, "unknown")
		err := newError(KindUnknownHandoff, "hydrate", "unknown handoff id "+handoffID)
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}

	hydrated, err := o.hydrator.Hydrate(ctx, req, targetAgentID)
	if err != nil {
		outcome := "degraded"
		switch KindOf(err) {
		case KindVerificationFailure:
			outcome = "verification_failed"
		case KindUnknownHandoff:
			outcome = "unknown"
		}
		o.metrics.RecordHydration(targetAgentID, outcome)
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	o.metrics.RecordHydration(targetAgentID, "ok")
	return hydrated, nil
}

// ListActiveHandoffs returns summaries of all non-terminal requests,
// newest first.
func (o *Orchestrator) ListActiveHandoffs() []Summary {
	o.mu.RLock()
	out := make([]Summary, 0, len(o.active))
	for _, req := range o.active {
		out = append(out, summarize(req))
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].HandoffID > out[j].HandoffID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// GetHandoffHistory returns up to limit retired requests, newest first.
// limit <= 0 returns everything retained.
func (o *Orchestrator) GetHandoffHistory(limit int) []Summary {
	return o.history.list(limit)
}

// Subscribe registers a handler for lifecycle events. Handlers run
// asynchronously on a bounded worker pool; slow handlers never block
// the orchestrator. The returned id cancels the subscription via
// Unsubscribe.
func (o *Orchestrator) Subscribe(handler func(Event)) string {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	id := fmt.Sprintf("sub-%d", atomic.AddInt64(&subscriptionCounter, 1))
	o.subscribers[id] = handler
	return id
}

// Unsubscribe removes a subscription.
func (o *Orchestrator) Unsubscribe(id string) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	delete(o.subscribers, id)
}

// advance moves a non-terminal request forward under the table lock and
// returns the event snapshot taken while holding it.
func (o *Orchestrator) advance(req *HandoffRequest, status HandoffStatus) (Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !canTransition(req.Status, status) {
		return Event{}, false
	}
	req.Status = status
	req.UpdatedAt = time.Now()
	return eventOf(req), true
}

// finalize moves a request into a terminal status, retires it from the
// active table into history, and notifies the audit sink and subscribers.
// Returns false when the transition is not legal; terminal requests are
// never modified.
func (o *Orchestrator) finalize(ctx context.Context, req *HandoffRequest, status HandoffStatus, errMsg string, durable bool) bool {
	o.mu.Lock()
	if !canTransition(req.Status, status) {
		o.mu.Unlock()
		return false
	}
	now := time.Now()
	req.Status = status
	req.UpdatedAt = now
	req.CompletionTime = &now
	if errMsg != "" {
		req.ErrorMessage = errMsg
	}
	if status == StatusCompleted {
		req.DurableContext = durable
	}
	delete(o.active, req.HandoffID)
	activeCount := len(o.active)
	ev := eventOf(req)
	o.mu.Unlock()

	o.history.add(req)
	o.metrics.SetActiveHandoffs(activeCount)
	o.metrics.RecordCompletion(req.SourceAgentID, req.TargetAgentID, status, durable, now.Sub(req.CreatedAt))
	if o.audit != nil {
		if err := o.audit.RecordHandoff(ctx, req); err != nil {
			o.logger.Warn("audit sink rejected handoff record",
				zap.String("handoff_id", req.HandoffID),
				zap.Error(err))
		}
	}
	o.emit(ev)
	return true
}

// emit fans an event out to all subscribers through the dispatch pool,
// keeping an event burst from spawning unbounded goroutines. Delivery
// is guaranteed: when the pool is saturated or closed the handler runs
// on a dedicated goroutine instead.
func (o *Orchestrator) emit(ev Event) {
	o.subMu.RLock()
	handlers := make([]func(Event), 0, len(o.subscribers))
	for _, h := range o.subscribers {
		handlers = append(handlers, h)
	}
	o.subMu.RUnlock()

	for _, handler := range handlers {
		err := o.dispatch.Submit(context.Background(), func(context.Context) error {
			handler(ev)
			return nil
		})
		if err != nil {
			go func() {
				defer func() {
					if r := recover(); r != nil {
						o.logger.Error("event subscriber panicked", zap.Any("panic", r))
					}
				}()
				handler(ev)
			}()
		}
	}
}

// Close drains the event dispatch pool. Events emitted after Close are
// delivered on dedicated goroutines.
func (o *Orchestrator) Close() {
	o.dispatch.Close()
}

// canTransition encodes the legal status moves. Terminal states have no
// outgoing edges.
func canTransition(from, to HandoffStatus) bool {
	switch from {
	case StatusInitiated:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	}
	return false
}

// eventOf snapshots a request into a lifecycle event. Callers hold the
// table lock when the request is still active.
func eventOf(req *HandoffRequest) Event {
	ev := Event{
		HandoffID:     req.HandoffID,
		SourceAgentID: req.SourceAgentID,
		TargetAgentID: req.TargetAgentID,
		Status:        req.Status,
		Priority:      req.Priority,
		Timestamp:     time.Now(),
		ErrorMessage:  req.ErrorMessage,
	}
	if req.Context != nil {
		ev.SessionID = req.Context.SessionID
	}
	return ev
}

// mergeMetadata layers caller metadata under the gatherer's protocol keys.
func mergeMetadata(hctx *HandoffContext, extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	if hctx.Metadata == nil {
		hctx.Metadata = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		if _, exists := hctx.Metadata[k]; exists {
			continue
		}
		hctx.Metadata[k] = v
	}
}

func newHandoffID() string {
	return "hoff_" + uuid.New().String()
}
