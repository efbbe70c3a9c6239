package engine

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openmatter/openmatter/pkg/telemetry"
)

// Registry holds the declared shape of every product and sum type. It is
// read-mostly shared state: Define takes the write lock, Lookup the read
// lock, so a reader never observes a partially-installed definition.
//
// Racing Define calls under the same name are last-write-wins; which writer
// won is undefined. Registries are expected to be populated once at startup.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]TypeDefinition
	logger zerolog.Logger
	events *telemetry.EventPublisher
}

// NewRegistry creates an empty registry. events may be nil when no event
// surface is wanted.
func NewRegistry(logger zerolog.Logger, events *telemetry.EventPublisher) *Registry {
	return &Registry{
		defs:   make(map[string]TypeDefinition),
		logger: logger.With().Str("component", "registry").Logger(),
		events: events,
	}
}

// Define registers or replaces a type definition. Shape invariants are
// checked here, not at use time; a failing definition is not installed and
// any previous definition under the same name is kept.
func (r *Registry) Define(def TypeDefinition) error {
	if err := def.Validate(); err != nil {
		r.logger.Error().Err(err).Str("type_name", def.Name).Msg("Rejected malformed definition")
		return err
	}

	installed := def.clone()

	r.mu.Lock()
	_, replaced := r.defs[installed.Name]
	r.defs[installed.Name] = installed
	r.mu.Unlock()

	r.logger.Debug().
		Str("type_name", installed.Name).
		Str("kind", string(installed.Kind)).
		Int("members", installed.MemberCount()).
		Bool("replaced", replaced).
		Msg("Type defined")

	_ = r.events.PublishTypeDefined(installed.Name, string(installed.Kind), installed.MemberCount())
	return nil
}

// Lookup returns the definition registered under name. The returned value is
// a copy; mutating it does not affect the registry.
func (r *Registry) Lookup(name string) (TypeDefinition, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()

	if !ok {
		return TypeDefinition{}, NewValidationError("type not registered").
			WithType(name).
			WithCode(CodeNotFound)
	}
	return def.clone(), nil
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
