package module

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// Registry is a build-once, read-many module table, addressed by dotted
// path (e.g. "pipe.tcp.port_8888"). Registration happens at startup before
// any request is served; lookups take only a read lock, which is never
// contended once Freeze has stopped further registration.
type Registry struct {
	mu     sync.RWMutex
	frozen bool
	byPath map[string]Module
	order  []string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byPath: make(map[string]Module)}
}

// Register adds a module under its own Path(). Returns a usage error if the
// path is already taken or registration happens after Freeze.
func (r *Registry) Register(m Module) error {
	if m == nil {
		return pkgerrors.NewUsageError("module.Register", "module is nil")
	}
	path := m.Path()
	if path == "" {
		return pkgerrors.NewUsageError("module.Register", "module path is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return pkgerrors.NewUsageError("module.Register", fmt.Sprintf("registry frozen, cannot register %q", path))
	}
	if _, exists := r.byPath[path]; exists {
		return pkgerrors.NewUsageError("module.Register", fmt.Sprintf("module %q already registered", path))
	}

	r.byPath[path] = m
	r.order = append(r.order, path)
	return nil
}

// Freeze marks the registry read-only. Called once at startup, after which
// Lookup/LookupPrefix need no synchronization in spirit (the mutex remains
// for defensive correctness, but is never contended post-freeze).
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup resolves a module by its exact dotted path.
func (r *Registry) Lookup(path string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byPath[path]
	if !ok {
		return nil, pkgerrors.NewUsageError("module.Lookup", fmt.Sprintf("no module registered at %q", path))
	}
	return m, nil
}

// LookupPrefix returns every module whose path starts with prefix (e.g. all
// modules under "pipe.tcp"), sorted by path for deterministic iteration.
func (r *Registry) LookupPrefix(prefix string) []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.order))
	for _, p := range r.order {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	out := make([]Module, 0, len(paths))
	for _, p := range paths {
		out = append(out, r.byPath[p])
	}
	return out
}

// EventProducers returns every registered module implementing EventProducer,
// sorted by path, for the event loop to spin up one thread per.
func (r *Registry) EventProducers() []EventProducer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := append([]string(nil), r.order...)
	sort.Strings(paths)

	out := make([]EventProducer, 0)
	for _, p := range paths {
		if ep, ok := r.byPath[p].(EventProducer); ok {
			out = append(out, ep)
		}
	}
	return out
}
