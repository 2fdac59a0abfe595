// Package agentrelay provides a top-level convenience entry point for creating
// handoff orchestrators with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agentrelay"
//
//	orch, err := agentrelay.New(
//		agentrelay.WithCapabilities(companion, analyst),
//	)
//	orch, err := agentrelay.New(
//		agentrelay.WithCapabilitiesFile("agents.yaml"),
//		agentrelay.WithVault(myVault),
//		agentrelay.WithSessionStore(mySessions),
//	)
//
// Every dependency is explicit and injected: there is no package-level
// singleton. Defaults are in-memory (session.NewMemoryStore, vault.NewMemoryVault),
// suitable for tests and single-process deployments. For the full service wiring
// (config file, Redis/Mongo vault, audit database, HTTP API) see cmd/relayd.
package agentrelay

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/handoff"
	"github.com/BaSui01/agentrelay/session"
	"github.com/BaSui01/agentrelay/types"
	"github.com/BaSui01/agentrelay/vault"
)

// Option configures the orchestrator created by [New].
type Option func(*options)

type options struct {
	capabilities     []handoff.Capability
	capabilitiesFile string
	sessions         session.Store
	vault            vault.Vault
	enrichment       *handoff.EnrichmentTable
	windowSize       int
	counter          types.TokenCounter
	historyLimit     int
	logger           *zap.Logger
}

// WithCapabilities registers agent capability declarations. At least one
// capability must be supplied, either here or via [WithCapabilitiesFile];
// an empty registry rejects every handoff.
func WithCapabilities(caps ...handoff.Capability) Option {
	return func(o *options) { o.capabilities = append(o.capabilities, caps...) }
}

// WithCapabilitiesFile loads agent capability declarations from a YAML file
// (see [handoff.LoadCapabilitiesFile] for the format). Combines with any
// capabilities given via [WithCapabilities].
func WithCapabilitiesFile(path string) Option {
	return func(o *options) { o.capabilitiesFile = path }
}

// WithSessionStore sets the session store handoff contexts are gathered from.
// Defaults to an in-memory store. The caller owns the store's lifecycle.
func WithSessionStore(s session.Store) Option {
	return func(o *options) { o.sessions = s }
}

// WithVault sets the vault context bundles are persisted to.
// Defaults to an in-memory vault. The caller owns the vault's lifecycle.
func WithVault(v vault.Vault) Option {
	return func(o *options) { o.vault = v }
}

// WithEnrichment sets the per-pair enrichment table. Defaults to an empty
// table (no enrichment for any agent pair).
func WithEnrichment(t *handoff.EnrichmentTable) Option {
	return func(o *options) { o.enrichment = t }
}

// WithWindowSize sets the conversation window size gathered into each handoff
// context. Values <= 0 fall back to [handoff.DefaultWindowSize].
func WithWindowSize(n int) Option {
	return func(o *options) { o.windowSize = n }
}

// WithTokenCounter sets the token counter used to annotate gathered windows.
// Without one, windows carry no token estimate.
func WithTokenCounter(c types.TokenCounter) Option {
	return func(o *options) { o.counter = c }
}

// WithHistoryLimit caps how many terminal handoff records the orchestrator
// retains in memory. Values <= 0 keep the orchestrator default.
func WithHistoryLimit(n int) Option {
	return func(o *options) { o.historyLimit = n }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a [handoff.Orchestrator] with minimal configuration.
// At minimum, agent capabilities must be supplied via [WithCapabilities] or
// [WithCapabilitiesFile]. Call [handoff.Orchestrator.Close] when done to drain
// the event dispatch pool.
func New(opts ...Option) (*handoff.Orchestrator, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	caps := o.capabilities
	if o.capabilitiesFile != "" {
		loaded, err := handoff.LoadCapabilitiesFile(o.capabilitiesFile)
		if err != nil {
			return nil, fmt.Errorf("load capabilities from %s: %w", o.capabilitiesFile, err)
		}
		caps = append(caps, loaded...)
	}
	if len(caps) == 0 {
		return nil, fmt.Errorf("at least one agent capability is required: use WithCapabilities or WithCapabilitiesFile")
	}

	sessions := o.sessions
	if sessions == nil {
		sessions = session.NewMemoryStore(o.logger)
	}
	store := o.vault
	if store == nil {
		store = vault.NewMemoryVault()
	}

	registry := handoff.NewCapabilityRegistry(caps...)
	gatherer := handoff.NewContextGatherer(sessions, o.enrichment, o.windowSize, o.logger)
	if o.counter != nil {
		gatherer = gatherer.WithTokenCounter(o.counter)
	}
	persister := handoff.NewBundlePersister(store, o.logger)
	hydrator := handoff.NewContextHydrator(persister, o.logger)

	orch := handoff.NewOrchestrator(registry, gatherer, persister, hydrator, sessions, o.logger)
	if o.historyLimit > 0 {
		orch = orch.WithHistoryLimit(o.historyLimit)
	}
	return orch, nil
}
