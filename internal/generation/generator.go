// Package generation selects the LLM backend named by active_student.
// Every variant implements domain.Generator and returns plain reply text.
package generation

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"energyrag/internal/config"
	"energyrag/internal/domain"
)

// Factory builds a generator from its configuration entry.
type Factory func(cfg config.LLMConfig) (domain.Generator, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the generator for cfg.Provider.
func (r *Registry) New(cfg config.LLMConfig) (domain.Generator, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.ConfigError{
			Field:  "llm.provider",
			Reason: fmt.Sprintf("no generation provider %q (registered: %s)", cfg.Provider, strings.Join(r.Names(), ", ")),
		}
	}
	g, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s generator: %w", cfg.Provider, err)
	}
	return g, nil
}

// APIKey reads the credential named by cfg.APIKeyEnv. An empty variable
// name means the backend needs no key.
func APIKey(cfg config.LLMConfig) (string, error) {
	if cfg.APIKeyEnv == "" {
		return "", nil
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return "", &domain.ConfigError{Field: "llm.api_key_env", Reason: fmt.Sprintf("missing API key in env %s", cfg.APIKeyEnv)}
	}
	return key, nil
}

// MaxTokens returns the configured reply limit or a default.
func MaxTokens(cfg config.LLMConfig) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return 1024
}
