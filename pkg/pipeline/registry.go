package pipeline

import (
	"fmt"
	"log/slog"
)

// Factory builds a transformer from manifest parameters.
type Factory func(params map[string]any) (Transformer, error)

// Registry maps transformer type names to factories. Registration happens
// at startup before concurrent access, so no mutex is needed.
type Registry struct {
	factories map[string]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.With("component", "transformer-registry"),
	}
}

// Register adds a factory under the given type name, replacing any
// previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
	r.logger.Debug("transformer registered", "type", name)
}

// New builds a transformer of the given type.
func (r *Registry) New(name string, params map[string]any) (Transformer, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no transformer registered for type %q", name)
	}
	return f(params)
}

// Types returns all registered type names.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}
