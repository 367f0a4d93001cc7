package dataset

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/keagan/videomcp/internal/errs"
)

// ErrNotFound is wrapped in the configuration error returned for unknown slugs.
var ErrNotFound = errors.New("dataset not registered")

// Registry maps slugs to adapter factories. It is populated during package
// initialisation and frozen before the pipeline consumes it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	frozen    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register associates slug with a factory. After Freeze it is a no-op that
// logs a warning. Registering the same slug twice panics, since it can only
// be a programming error.
func (r *Registry) Register(slug string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		log.Warn().Str("dataset", slug).Msg("registry is frozen, ignoring registration")
		return
	}
	if slug == "" || f == nil {
		panic("dataset: Register requires a slug and a factory")
	}
	if _, dup := r.factories[slug]; dup {
		panic(fmt.Sprintf("dataset: %q registered twice", slug))
	}
	r.factories[slug] = f
}

// Get builds the adapter registered under slug.
func (r *Registry) Get(slug string, opts Options) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[slug]
	r.mu.RUnlock()

	if !ok {
		return nil, errs.Configuration(
			fmt.Sprintf("resolve dataset %q", slug),
			fmt.Errorf("%w (available: %v)", ErrNotFound, r.List()),
		)
	}
	return f(opts), nil
}

// List returns all registered slugs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry holding the built-in adapters.
func Default() *Registry { return defaultRegistry }

// Register adds a factory to the process-wide registry.
func Register(slug string, f Factory) { defaultRegistry.Register(slug, f) }

// Get resolves slug in the process-wide registry.
func Get(slug string, opts Options) (Adapter, error) { return defaultRegistry.Get(slug, opts) }

// List returns the slugs in the process-wide registry.
func List() []string { return defaultRegistry.List() }

// Freeze makes the process-wide registry read-only.
func Freeze() { defaultRegistry.Freeze() }
