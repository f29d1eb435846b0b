// Package completion implements the completion orchestrator: it drives one
// "ask the model something" operation from prompt to final text across
// bounded tool-call rounds, bridging between providers with native function
// calling and providers that only speak the textual fallback convention.
//
// A [Registry] is long-lived and safe for concurrent completions: all
// per-operation state (conversation, round counter, loop-detector history)
// lives in values created inside [Registry.Complete] and discarded when it
// returns. Shared mutable state is limited to the process-wide
// [CapabilityCache], the tool event log, and the hot-reloadable parts of the
// configuration, all guarded by the Registry's mutex or the cache's own.
package completion

import (
	"fmt"
	"os"
	"sync"

	"github.com/pfahlr/llm-writer/internal/config"
	"github.com/pfahlr/llm-writer/internal/mcp"
	"github.com/pfahlr/llm-writer/internal/observe"
	"github.com/pfahlr/llm-writer/pkg/provider/llm"
)

// Registry resolves model ids to providers and runs completions against
// them. Create instances with [NewRegistry].
type Registry struct {
	providers map[string]config.ProviderConfig
	serverIDs []string

	factories *config.Registry
	exec      mcp.Executor
	caps      *CapabilityCache
	metrics   *observe.Metrics

	// mu guards the hot-reloadable configuration (models, defaults,
	// iteration, current) next to the caches. The maps behind models and
	// defaults are replaced wholesale by UpdateConfig, never mutated, so a
	// snapshot taken under the lock stays safe to read afterwards.
	mu            sync.Mutex
	models        map[string]config.ModelConfig
	defaults      map[string]any
	iteration     config.ToolsConfig
	current       string
	providerCache map[string]llm.Provider // keyed by model id
	toolEvents    []string
}

// Option is a functional option for configuring a [Registry].
type Option func(*Registry)

// WithCapabilityCache substitutes the process-wide function-calling
// capability cache. Intended for tests that must not observe downgrades
// from other tests.
func WithCapabilityCache(c *CapabilityCache) Option {
	return func(r *Registry) {
		if c != nil {
			r.caps = c
		}
	}
}

// WithMetrics substitutes the metrics instance. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithProvider pre-populates the provider cache for a model id, bypassing
// the factory. Intended for tests.
func WithProvider(modelID string, p llm.Provider) Option {
	return func(r *Registry) {
		r.providerCache[modelID] = p
	}
}

// NewRegistry builds a Registry from validated configuration. factories
// supplies the per-provider-type constructors; exec is the tool-layer
// collaborator and may be nil when no MCP servers are configured.
//
// Capability priors from the configuration (providers[].function_calling)
// are seeded into the cache here.
func NewRegistry(cfg *config.Config, factories *config.Registry, exec mcp.Executor, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("completion: config must not be nil")
	}
	if factories == nil {
		return nil, fmt.Errorf("completion: provider factory registry must not be nil")
	}

	r := &Registry{
		models:        make(map[string]config.ModelConfig, len(cfg.Models)),
		providers:     make(map[string]config.ProviderConfig, len(cfg.Providers)),
		defaults:      cfg.ModelDefaults,
		iteration:     cfg.Tools,
		factories:     factories,
		exec:          exec,
		caps:          NewCapabilityCache(),
		current:       cfg.DefaultModel,
		providerCache: make(map[string]llm.Provider),
	}
	for _, m := range cfg.Models {
		r.models[m.ID] = m
	}
	for _, p := range cfg.Providers {
		r.providers[p.ID] = p
	}
	if exec != nil {
		for _, s := range cfg.MCP.Servers {
			r.serverIDs = append(r.serverIDs, s.ID)
		}
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}

	// Seed capability priors after options so a substituted cache gets them.
	for _, p := range cfg.Providers {
		if p.FunctionCalling != nil {
			r.caps.Seed(p.Type, *p.FunctionCalling)
		}
	}

	return r, nil
}

// Models returns the registered model ids in unspecified order.
func (r *Registry) Models() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	return ids
}

// CurrentModel returns the id of the currently selected model.
func (r *Registry) CurrentModel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// SetCurrent changes the model used when a completion request does not name
// one. Fails with [ErrUnknownModel] if id is not registered.
func (r *Registry) SetCurrent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	r.current = id
	return nil
}

// UpdateConfig applies a hot-reloaded configuration: the model set, the
// process-wide generation defaults, the global iteration policy, and the
// default-model selection are swapped in, and cached provider instances for
// changed or removed models are discarded so the next completion rebuilds
// them. Provider accounts and MCP servers keep their startup values; they
// are not hot-reloadable.
func (r *Registry) UpdateConfig(cfg *config.Config, d config.ConfigDiff) {
	if cfg == nil {
		return
	}

	models := make(map[string]config.ModelConfig, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m.ID] = m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = models
	r.defaults = cfg.ModelDefaults
	r.iteration = cfg.Tools

	for _, md := range d.ModelChanges {
		delete(r.providerCache, md.ID)
	}
	if d.DefaultModelChanged && cfg.DefaultModel != "" {
		r.current = cfg.DefaultModel
	}
	// The selection must always point at a model that still exists.
	if _, ok := models[r.current]; !ok {
		r.current = cfg.DefaultModel
	}
}

// resolve maps a model id (or "" for the current selection) to its model and
// provider configuration.
func (r *Registry) resolve(modelID string) (config.ModelConfig, config.ProviderConfig, error) {
	r.mu.Lock()
	if modelID == "" {
		modelID = r.current
	}
	model, ok := r.models[modelID]
	r.mu.Unlock()

	if modelID == "" {
		return config.ModelConfig{}, config.ProviderConfig{}, fmt.Errorf("%w: no model selected and no default_model configured", ErrUnknownModel)
	}
	if !ok {
		return config.ModelConfig{}, config.ProviderConfig{}, fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	provider, ok := r.providers[model.Provider]
	if !ok {
		return config.ModelConfig{}, config.ProviderConfig{}, fmt.Errorf("%w: model %q references provider %q which is not configured", ErrUnknownProvider, modelID, model.Provider)
	}
	return model, provider, nil
}

// resolveCredential yields the provider's API key: the literal value when
// set, otherwise the named environment variable. An empty result fails
// before any network call is made.
func resolveCredential(p config.ProviderConfig) (string, error) {
	if p.APIKey != "" {
		return p.APIKey, nil
	}
	if p.APIKeyEnv != "" {
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("%w: provider %q: environment variable %s is empty or unset", ErrMissingCredential, p.ID, p.APIKeyEnv)
	}
	return "", fmt.Errorf("%w: provider %q has neither api_key nor api_key_env configured", ErrMissingCredential, p.ID)
}

// providerFor returns the llm.Provider for a model, constructing and caching
// it on first use. Construction resolves the credential, so a missing secret
// fails here rather than mid-conversation.
func (r *Registry) providerFor(modelID string, model config.ModelConfig, providerCfg config.ProviderConfig) (llm.Provider, error) {
	r.mu.Lock()
	if p, ok := r.providerCache[modelID]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	apiKey, err := resolveCredential(providerCfg)
	if err != nil {
		return nil, err
	}

	p, err := r.factories.CreateLLM(providerCfg, model.ModelName, apiKey)
	if err != nil {
		return nil, fmt.Errorf("completion: constructing provider for model %q: %w", modelID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have raced us here; keep the first instance.
	if cached, ok := r.providerCache[modelID]; ok {
		return cached, nil
	}
	r.providerCache[modelID] = p
	return p, nil
}

// generationDefaults snapshots the current process-wide parameter layer.
func (r *Registry) generationDefaults() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaults
}

// recordToolEvent appends one human-readable line describing an executed
// tool call to the event log.
func (r *Registry) recordToolEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolEvents = append(r.toolEvents, event)
}

// PopToolEvents returns the accumulated tool event lines and clears the log.
// Callers typically drain it after each completion to show the user which
// tools ran.
func (r *Registry) PopToolEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.toolEvents
	r.toolEvents = nil
	return events
}
