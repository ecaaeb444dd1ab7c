package proxy

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/logging"
)

// Recorder turns proxied transactions into routes. Each method and
// endpoint is recorded once; routes the environment already serves are
// skipped.
type Recorder struct {
	filter *Filter
	log    *slog.Logger

	mu     sync.Mutex
	seen   map[string]bool
	routes []*environment.Route
}

// NewRecorder returns a Recorder keeping the transactions filter allows.
func NewRecorder(filter *Filter, log *slog.Logger) *Recorder {
	if log == nil {
		log = logging.Nop()
	}
	return &Recorder{
		filter: filter,
		log:    logging.Component(log, "recorder"),
		seen:   map[string]bool{},
	}
}

// Record adds tx as a route unless it is filtered out or already known.
func (r *Recorder) Record(env *environment.Environment, tx environment.Transaction) bool {
	if !r.filter.ShouldRecord(tx.Path) {
		return false
	}
	route := env.RouteFromTransaction(tx)
	key := route.Method + " " + route.Endpoint

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[key] || env.HasRoute(route.Method, route.Endpoint) {
		return false
	}
	r.seen[key] = true
	r.routes = append(r.routes, route)
	r.log.Info("recorded route", "method", route.Method, "endpoint", route.Endpoint, "status", tx.StatusCode)
	return true
}

// Routes returns the recorded routes in recording order.
func (r *Recorder) Routes() []*environment.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*environment.Route(nil), r.routes...)
}

// Len returns the number of recorded routes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}

// Merge returns a copy of env with the recorded routes appended to its
// routes and root children. env itself is not modified.
func (r *Recorder) Merge(env *environment.Environment) *environment.Environment {
	routes := r.Routes()
	out := *env
	out.Routes = append(append([]*environment.Route(nil), env.Routes...), routes...)
	if len(env.RootChildren) > 0 || len(env.Folders) > 0 {
		out.RootChildren = append([]environment.FolderChild(nil), env.RootChildren...)
		for _, route := range routes {
			out.RootChildren = append(out.RootChildren, environment.FolderChild{Type: "route", UUID: route.UUID})
		}
	}
	return &out
}

// Save writes env merged with the recorded routes to path. Nothing is
// written when no route was recorded.
func (r *Recorder) Save(env *environment.Environment, path string) error {
	if r.Len() == 0 {
		return nil
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("no environment file to save %d recorded routes to", r.Len())
	}
	if err := environment.SaveToFile(r.Merge(env), path); err != nil {
		return fmt.Errorf("saving recorded routes: %w", err)
	}
	r.log.Info("saved recorded routes", "count", r.Len(), "path", path)
	return nil
}
