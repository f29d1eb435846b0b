package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pfahlr/llm-writer/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [Registry.CreateLLM] when no
// factory has been registered under the requested provider type.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LLMFactory constructs a provider for one configured model. The entry is the
// provider account block, modelName the backend-specific model identifier,
// and apiKey the resolved credential (literal or environment).
type LLMFactory func(entry ProviderConfig, modelName, apiKey string) (llm.Provider, error)

// Registry maps provider types to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]LLMFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]LLMFactory),
	}
}

// RegisterLLM registers an LLM provider factory under providerType.
// Subsequent calls with the same type overwrite the previous registration.
func (r *Registry) RegisterLLM(providerType string, factory LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[providerType] = factory
}

// CreateLLM constructs a provider using the factory registered for
// entry.Type. Returns [ErrProviderNotRegistered] when no factory exists.
func (r *Registry) CreateLLM(entry ProviderConfig, modelName, apiKey string) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm provider type %q", ErrProviderNotRegistered, entry.Type)
	}
	return factory(entry, modelName, apiKey)
}

// RegisteredLLMTypes returns the provider types with a registered factory.
func (r *Registry) RegisteredLLMTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.llm))
	for t := range r.llm {
		types = append(types, t)
	}
	return types
}
