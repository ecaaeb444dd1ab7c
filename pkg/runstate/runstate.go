// Package runstate holds everything mutable about one run of an
// environment: global variables, data bucket values, route counters and
// the faker seed. Restarting a run means building a new Run.
package runstate

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mockenv/mockenv/pkg/databucket"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/faker"
	"github.com/mockenv/mockenv/pkg/logging"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/template"
)

// Options configures a run.
type Options struct {
	// Seed for the faker generator. Zero picks a time based seed.
	Seed uint64
	// TLS is reported to templates through baseUrl.
	TLS    bool
	Logger *slog.Logger

	// Now and LookupEnv are passed through to templates.
	Now       func() time.Time
	LookupEnv func(string) (string, bool)
}

// Run is the state of one run.
type Run struct {
	ID        string
	StartedAt time.Time

	Env     *environment.Environment
	Engine  *template.Engine
	Globals *Globals
	Buckets *databucket.Resolver
	Faker   *faker.Generator

	opts     Options
	log      *slog.Logger
	counters sync.Map // route uuid -> *atomic.Uint64
	cursors  sync.Map // route uuid -> *atomic.Uint64
}

// New builds a fresh run of env.
func New(env *environment.Environment, engine *template.Engine, opts Options) *Run {
	if engine == nil {
		engine = template.New()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Env:       env,
		Engine:    engine,
		Globals:   NewGlobals(),
		Buckets:   databucket.New(env, engine),
		Faker:     faker.New(seed),
		opts:      opts,
		log:       logging.Component(log, "run"),
	}
	run.Buckets.SetLogger(log)
	return run
}

// Logger returns the run logger.
func (r *Run) Logger() *slog.Logger {
	return r.log
}

// Warm materializes the data buckets that do not depend on a request.
func (r *Run) Warm() {
	r.Buckets.Warm(r.TemplateContext(nil, &template.ResponseState{}))
}

func counter(m *sync.Map, key string) *atomic.Uint64 {
	if v, ok := m.Load(key); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := m.LoadOrStore(key, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// NextRequestNumber counts a request on the route and returns its
// 1-based number within the run.
func (r *Run) NextRequestNumber(routeUUID string) uint64 {
	return counter(&r.counters, routeUUID).Add(1)
}

// RequestCount returns how many requests the route has seen.
func (r *Run) RequestCount(routeUUID string) uint64 {
	return counter(&r.counters, routeUUID).Load()
}

// NextCursor returns the SEQUENTIAL position for the route, modulo n.
func (r *Run) NextCursor(routeUUID string, n int) int {
	if n <= 0 {
		return 0
	}
	next := counter(&r.cursors, routeUUID).Add(1)
	return int((next - 1) % uint64(n))
}

// TemplateContext assembles the render context of a request. req and resp
// may be nil.
func (r *Run) TemplateContext(req *request.Request, resp *template.ResponseState) *template.Context {
	if resp == nil {
		resp = &template.ResponseState{}
	}
	return &template.Context{
		Request:  req,
		Response: resp,
		Globals:  r.Globals,
		Buckets:  r.Buckets,
		Faker:    r.Faker,
		Server: template.ServerInfo{
			Port:   r.Env.Port,
			TLS:    r.opts.TLS,
			Prefix: r.Env.Prefix(),
		},
		EnvVarsPrefix: r.Env.VarsPrefix(),
		Now:           r.opts.Now,
		LookupEnv:     r.opts.LookupEnv,
	}
}

// Counters returns the per-route request counts.
func (r *Run) Counters() map[string]uint64 {
	out := make(map[string]uint64)
	r.counters.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}
