// Package databucket materializes and memoizes the data buckets of an
// environment for the lifetime of a run.
//
// A bucket's definition is a template. It is rendered the first time the
// bucket is referenced, parsed as JSON when possible, and frozen: later
// lookups from any request see the same value until setData or a CRUD
// route replaces it, or the run ends.
package databucket

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/logging"
	"github.com/mockenv/mockenv/pkg/template"
)

// requestHelpers matches definitions that depend on the request and so
// cannot be materialized at run start.
var requestHelpers = regexp.MustCompile(`\{\{[^}]*\b(body|bodyRaw|queryParam|queryParamRaw|urlParam|header|cookie|method|ip|hostname|baseUrl)\b`)

// Entry is the admin view of one bucket.
type Entry struct {
	ID       string `json:"id"`
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Resolved bool   `json:"resolved"`
	Value    any    `json:"value,omitempty"`
}

// Resolver is the run-scoped bucket store. Reads take lock-free
// snapshots; writes are serialized.
type Resolver struct {
	buckets []*environment.DataBucket
	engine  *template.Engine
	log     *slog.Logger

	mu     sync.Mutex
	values atomic.Pointer[map[string]any]
}

// New creates a resolver over the buckets of env.
func New(env *environment.Environment, engine *template.Engine) *Resolver {
	r := &Resolver{
		buckets: env.Data,
		engine:  engine,
		log:     logging.Nop(),
	}
	r.values.Store(&map[string]any{})
	return r
}

// SetLogger sets the operational logger.
func (r *Resolver) SetLogger(log *slog.Logger) {
	if log != nil {
		r.log = logging.Component(log, "databucket")
	}
}

func key(b *environment.DataBucket) string {
	if b.ID != "" {
		return b.ID
	}
	return b.UUID
}

// Find returns the bucket ref designates: by id, then exact name, then
// case-insensitive name substring, in declaration order.
func (r *Resolver) Find(ref string) *environment.DataBucket {
	if ref == "" {
		return nil
	}
	for _, b := range r.buckets {
		if b.ID == ref {
			return b
		}
	}
	for _, b := range r.buckets {
		if b.Name == ref {
			return b
		}
	}
	lower := strings.ToLower(ref)
	for _, b := range r.buckets {
		if strings.Contains(strings.ToLower(b.Name), lower) {
			return b
		}
	}
	return nil
}

func (r *Resolver) cached(k string) (any, bool) {
	v, ok := (*r.values.Load())[k]
	return v, ok
}

// Lookup returns the value of the referenced bucket, materializing it with
// ctx on first use.
func (r *Resolver) Lookup(ref string, ctx *template.Context) (any, bool) {
	return r.lookup(ref, ctx, nil)
}

func (r *Resolver) lookup(ref string, ctx *template.Context, chain []string) (any, bool) {
	b := r.Find(ref)
	if b == nil {
		return nil, false
	}
	k := key(b)
	if v, ok := r.cached(k); ok {
		return v, true
	}
	if slices.Contains(chain, k) {
		r.log.Warn("data bucket reference cycle", "bucket", k, "chain", strings.Join(chain, " -> "))
		return nil, false
	}
	v := r.materialize(b, ctx, append(chain[:len(chain):len(chain)], k))
	return r.store(k, v), true
}

// materialize renders the definition. Render failures are stored as the
// error message so every lookup sees the same value.
func (r *Resolver) materialize(b *environment.DataBucket, ctx *template.Context, chain []string) any {
	var sub template.Context
	if ctx != nil {
		sub = *ctx
	}
	sub.Buckets = &chained{r: r, chain: chain}

	out, err := r.engine.Render(b.Value, &sub)
	if err != nil {
		r.log.Warn("data bucket render failed", "bucket", key(b), "error", err)
		return err.Error()
	}
	var v any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return out
	}
	return v
}

// store memoizes v unless another goroutine got there first, and returns
// the memoized value.
func (r *Resolver) store(k string, v any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.values.Load()
	if existing, ok := cur[k]; ok {
		return existing
	}
	next := make(map[string]any, len(cur)+1)
	for ck, cv := range cur {
		next[ck] = cv
	}
	next[k] = v
	r.values.Store(&next)
	return v
}

// Update replaces the value of the referenced bucket with fn(current),
// materializing it first. It reports whether the bucket exists.
func (r *Resolver) Update(ref string, ctx *template.Context, fn func(current any) any) bool {
	b := r.Find(ref)
	if b == nil {
		return false
	}
	r.Lookup(ref, ctx)
	k := key(b)

	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.values.Load()
	next := make(map[string]any, len(cur))
	for ck, cv := range cur {
		next[ck] = cv
	}
	next[k] = fn(cur[k])
	r.values.Store(&next)
	return true
}

// Warm materializes every bucket whose definition does not read the
// request.
func (r *Resolver) Warm(ctx *template.Context) {
	for _, b := range r.buckets {
		if requestHelpers.MatchString(b.Value) {
			continue
		}
		r.lookup(key(b), ctx, nil)
	}
}

// Targets returns every bucket value keyed by id and by name, the shape
// data_bucket rules select from.
func (r *Resolver) Targets(ctx *template.Context) map[string]any {
	out := make(map[string]any, 2*len(r.buckets))
	for _, b := range r.buckets {
		v, ok := r.lookup(key(b), ctx, nil)
		if !ok {
			continue
		}
		out[key(b)] = v
		if b.Name != "" {
			out[b.Name] = v
		}
	}
	return out
}

// Snapshot lists the buckets in declaration order with their current
// values. Unresolved buckets are not materialized.
func (r *Resolver) Snapshot() []Entry {
	values := *r.values.Load()
	out := make([]Entry, 0, len(r.buckets))
	for _, b := range r.buckets {
		v, ok := values[key(b)]
		out = append(out, Entry{ID: b.ID, UUID: b.UUID, Name: b.Name, Resolved: ok, Value: v})
	}
	return out
}

// Reset drops every memoized value.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values.Store(&map[string]any{})
}

// chained is the store seen while a bucket is being materialized. It
// carries the chain of buckets in progress to break reference cycles.
type chained struct {
	r     *Resolver
	chain []string
}

func (c *chained) Lookup(ref string, ctx *template.Context) (any, bool) {
	return c.r.lookup(ref, ctx, c.chain)
}

func (c *chained) Update(ref string, ctx *template.Context, fn func(current any) any) bool {
	return c.r.Update(ref, ctx, fn)
}
