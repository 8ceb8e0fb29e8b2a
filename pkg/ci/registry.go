package ci

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the backend implementations selected at startup
// configuration time. Selection is explicit, there is no implicit
// profile-based wiring.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]ContinuousIntegration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]ContinuousIntegration)}
}

// Register adds a backend under its own name. Registering the same name
// twice is a wiring bug and returns an error.
func (r *Registry) Register(backend ContinuousIntegration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := backend.Name()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("CI backend %q is already registered", name)
	}
	r.backends[name] = backend
	return nil
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (ContinuousIntegration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("no CI backend registered under %q", name)
	}
	return backend, nil
}

// Names returns the registered backend names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered backends in stable name order.
func (r *Registry) All() []ContinuousIntegration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	backends := make([]ContinuousIntegration, 0, len(names))
	for _, name := range names {
		backends = append(backends, r.backends[name])
	}
	return backends
}
