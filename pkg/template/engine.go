package template

import (
	"strings"
	"sync"

	"github.com/mockenv/mockenv/pkg/faker"
)

// DefaultCacheSize bounds the compiled template cache.
const DefaultCacheSize = 2048

// scriptMarker switches a template to script mode when it is the first line.
const scriptMarker = "#!script"

// Engine compiles and renders templates. It is safe for concurrent use.
type Engine struct {
	registry *Registry
	faker    *faker.Generator

	mu        sync.RWMutex
	cache     map[string]*Template
	cacheSize int

	scripts *scriptCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry replaces the built-in helper registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithCacheSize bounds the compiled template cache. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithFaker sets the generator used when a Context carries none.
func WithFaker(g *faker.Generator) Option {
	return func(e *Engine) {
		e.faker = g
	}
}

// New creates an engine with the built-in helpers.
func New(opts ...Option) *Engine {
	e := &Engine{
		cache:     make(map[string]*Template),
		cacheSize: DefaultCacheSize,
		scripts:   newScriptCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = DefaultRegistry()
	}
	if e.faker == nil {
		e.faker = faker.New(0)
	}
	return e
}

// Registry returns the engine's helper registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Template is a compiled template.
type Template struct {
	Source string
	nodes  []Node
	script string
	isText bool
}

// IsScript reports whether the template runs in script mode.
func (t *Template) IsScript() bool {
	return t.script != ""
}

// Compile parses src, using the cache when possible.
func (e *Engine) Compile(src string) (*Template, error) {
	if e.cacheSize > 0 {
		e.mu.RLock()
		t, ok := e.cache[src]
		e.mu.RUnlock()
		if ok {
			return t, nil
		}
	}

	t, err := compile(src)
	if err != nil {
		return nil, err
	}

	if e.cacheSize > 0 {
		e.mu.Lock()
		if len(e.cache) >= e.cacheSize {
			e.cache = make(map[string]*Template)
		}
		e.cache[src] = t
		e.mu.Unlock()
	}
	return t, nil
}

func compile(src string) (*Template, error) {
	if first, rest, _ := strings.Cut(src, "\n"); strings.TrimSpace(first) == scriptMarker {
		if strings.TrimSpace(rest) == "" {
			return &Template{Source: src, isText: true}, nil
		}
		return &Template{Source: src, script: rest}, nil
	}
	if !strings.Contains(src, "{{") {
		return &Template{Source: src, isText: true}, nil
	}
	nodes, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Template{Source: src, nodes: nodes}, nil
}

// Render compiles and executes src.
func (e *Engine) Render(src string, ctx *Context) (string, error) {
	t, err := e.Compile(src)
	if err != nil {
		return "", err
	}
	return e.Execute(t, ctx)
}

// Execute runs a compiled template.
func (e *Engine) Execute(t *Template, ctx *Context) (string, error) {
	switch {
	case t.isText:
		if t.script != "" || strings.HasPrefix(strings.TrimSpace(t.Source), scriptMarker) {
			return "", nil
		}
		return t.Source, nil
	case t.script != "":
		v, err := e.runScript(t.script, ctx)
		if err != nil {
			return "", err
		}
		return output(v, false), nil
	}
	r := e.newRenderer(ctx)
	var b strings.Builder
	if err := r.render(t.nodes, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Evaluate returns the value of a template. A template made of a single
// tag yields the tag's value unstringified; anything else yields the
// rendered string.
func (e *Engine) Evaluate(src string, ctx *Context) (any, error) {
	t, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	if t.script != "" {
		v, err := e.runScript(t.script, ctx)
		return Unwrap(v), err
	}
	if len(t.nodes) == 1 {
		if m, ok := t.nodes[0].(*MustacheNode); ok {
			r := e.newRenderer(ctx)
			v, err := r.call(m.Expr, nil)
			if err != nil {
				return nil, err
			}
			return Unwrap(v), nil
		}
	}
	return e.Execute(t, ctx)
}

func (e *Engine) newRenderer(ctx *Context) *renderer {
	if ctx == nil {
		ctx = &Context{}
	}
	return &renderer{e: e, ctx: ctx, sc: newScope(ctx.This)}
}

func (e *Engine) fakerFor(ctx *Context) *faker.Generator {
	if ctx != nil && ctx.Faker != nil {
		return ctx.Faker
	}
	return e.faker
}
