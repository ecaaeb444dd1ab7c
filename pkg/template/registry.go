package template

import (
	"sort"
	"sync"
)

// Helper is a function callable from templates. Block helpers receive a
// Call whose IsBlock reports true and render their sections through it.
type Helper interface {
	Invoke(c *Call) (any, error)
}

// HelperFunc adapts a function to Helper.
type HelperFunc func(c *Call) (any, error)

// Invoke calls f.
func (f HelperFunc) Invoke(c *Call) (any, error) {
	return f(c)
}

// Registry maps helper names to helpers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	helpers map[string]Helper
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{helpers: make(map[string]Helper)}
}

// Register adds or replaces a helper.
func (r *Registry) Register(name string, h Helper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.helpers[name] = h
}

// RegisterFunc is Register for plain functions.
func (r *Registry) RegisterFunc(name string, f func(c *Call) (any, error)) {
	r.Register(name, HelperFunc(f))
}

// Lookup returns the named helper.
func (r *Registry) Lookup(name string) (Helper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.helpers[name]
	return h, ok
}

// Names lists registered helpers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.helpers))
	for n := range r.helpers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	for n, h := range r.helpers {
		c.helpers[n] = h
	}
	return c
}

// DefaultRegistry returns a registry holding every built-in helper.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerRequestHelpers(r)
	registerFakerHelpers(r)
	registerDataHelpers(r)
	registerVarHelpers(r)
	registerBlockHelpers(r)
	registerMathHelpers(r)
	registerStringHelpers(r)
	registerCollectionHelpers(r)
	registerDateHelpers(r)
	registerJWTHelpers(r)
	return r
}
