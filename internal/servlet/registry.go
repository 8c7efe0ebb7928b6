package servlet

import (
	"fmt"
	"sync"

	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// Factory constructs a fresh Servlet instance. Servlets are stateless
// compute units (§1), so a factory rather than a shared singleton keeps
// per-node instances independent even when the same servlet name backs
// multiple graph nodes with different argv.
type Factory func() Servlet

// Registry is the servlet loader (§2 "Servlet loader" row): it registers
// servlet factories by name, mirroring the module registry's build-once,
// read-many shape. A node's PD table comes from the servlet's Describe,
// called by graph.Builder.Freeze, not from Init.
type Registry struct {
	mu   sync.RWMutex
	byName map[string]Factory
}

// NewRegistry constructs an empty servlet registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Factory)}
}

// Register adds a servlet factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return pkgerrors.NewUsageError("servlet.Register", "name is empty")
	}
	if f == nil {
		return pkgerrors.NewUsageError("servlet.Register", "factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return pkgerrors.NewUsageError("servlet.Register", fmt.Sprintf("servlet %q already registered", name))
	}
	r.byName[name] = f
	return nil
}

// New instantiates a fresh servlet by name (a "servlet instance" per §3,
// created when a service node references it).
func (r *Registry) New(name string) (Servlet, error) {
	r.mu.RLock()
	f, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.NewUsageError("servlet.New", fmt.Sprintf("no servlet registered as %q", name))
	}
	return f(), nil
}

// Names returns the registered servlet names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}
