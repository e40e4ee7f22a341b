package llm

import (
	"fmt"
	"sort"
)

// Registry indexes configured providers by the models they serve. It is
// built once at startup and read-only afterwards, so concurrent reads
// need no locking.
type Registry struct {
	providers map[string]LLMProvider // provider name -> provider
	models    map[string]ModelInfo   // model ID -> info
	serving   map[string]string      // model ID -> provider name
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]LLMProvider),
		models:    make(map[string]ModelInfo),
		serving:   make(map[string]string),
	}
}

// Add registers a provider and indexes every model it serves.
func (r *Registry) Add(provider LLMProvider) {
	r.providers[provider.Name()] = provider
	for _, model := range provider.ListModels() {
		r.models[model.ID] = model
		r.serving[model.ID] = provider.Name()
	}
}

// ProviderFor returns the provider that serves the given model.
func (r *Registry) ProviderFor(modelID string) (LLMProvider, error) {
	name, ok := r.serving[modelID]
	if !ok {
		return nil, fmt.Errorf("no provider serves model %q", modelID)
	}
	return r.providers[name], nil
}

// ListModels returns every registered model sorted reverse alphabetically
// by ID, which naturally puts newer versions first (2.5 before 2.0).
func (r *Registry) ListModels() []ModelInfo {
	models := make([]ModelInfo, 0, len(r.models))
	for _, info := range r.models {
		models = append(models, info)
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID > models[j].ID
	})
	return models
}

// DefaultModel returns the first model in ListModels order, or "" when
// no providers are registered. Used when no model is configured.
func (r *Registry) DefaultModel() string {
	models := r.ListModels()
	if len(models) == 0 {
		return ""
	}
	return models[0].ID
}
