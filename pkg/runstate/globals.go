package runstate

import (
	"sync"
	"sync/atomic"
)

// Globals is the run-scoped global variable store. Readers see immutable
// snapshots; writers copy and swap under a mutex.
type Globals struct {
	mu   sync.Mutex
	vars atomic.Pointer[map[string]any]
}

// NewGlobals returns an empty store.
func NewGlobals() *Globals {
	g := &Globals{}
	g.vars.Store(&map[string]any{})
	return g
}

func (g *Globals) Get(name string) (any, bool) {
	v, ok := (*g.vars.Load())[name]
	return v, ok
}

func (g *Globals) Set(name string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur := *g.vars.Load()
	next := make(map[string]any, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[name] = value
	g.vars.Store(&next)
}

// Snapshot returns the current variables. The map must not be modified.
func (g *Globals) Snapshot() map[string]any {
	return *g.vars.Load()
}

// Purge removes every variable.
func (g *Globals) Purge() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vars.Store(&map[string]any{})
}
