package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mockenv/mockenv/internal/matching"
	"github.com/mockenv/mockenv/pkg/environment"
)

// crudParam is the parameter carrying the item key of CRUD item routes.
const crudParam = "id"

type crudAction string

const (
	crudNone            crudAction = ""
	crudList            crudAction = "get"
	crudGetByID         crudAction = "getById"
	crudCreate          crudAction = "create"
	crudUpdate          crudAction = "update"
	crudUpdateByID      crudAction = "updateById"
	crudUpdateMerge     crudAction = "updateMerge"
	crudUpdateMergeByID crudAction = "updateMergeById"
	crudDelete          crudAction = "delete"
	crudDeleteByID      crudAction = "deleteById"
)

// compiledRoute is a route with its endpoint compiled.
type compiledRoute struct {
	route   *environment.Route
	pattern *matching.Pattern
	// item matches "<endpoint>/:id" on CRUD routes.
	item *matching.Pattern
}

// routeMatch is a route accepting a request.
type routeMatch struct {
	*compiledRoute
	params map[string]string
	action crudAction
}

// match reports whether the route accepts method and path.
func (c *compiledRoute) match(method, path string) (routeMatch, bool) {
	if c.route.Type == environment.RouteTypeCRUD {
		if params, ok := c.pattern.Match(path); ok {
			if action := collectionAction(method); action != crudNone {
				return routeMatch{compiledRoute: c, params: params, action: action}, true
			}
			return routeMatch{}, false
		}
		if params, ok := c.item.Match(path); ok {
			if action := itemAction(method); action != crudNone {
				return routeMatch{compiledRoute: c, params: params, action: action}, true
			}
		}
		return routeMatch{}, false
	}

	if !c.route.MatchesMethod(method) {
		return routeMatch{}, false
	}
	params, ok := c.pattern.Match(path)
	if !ok {
		return routeMatch{}, false
	}
	return routeMatch{compiledRoute: c, params: params}, true
}

func collectionAction(method string) crudAction {
	switch method {
	case http.MethodGet, http.MethodHead:
		return crudList
	case http.MethodPost:
		return crudCreate
	case http.MethodPut:
		return crudUpdate
	case http.MethodPatch:
		return crudUpdateMerge
	case http.MethodDelete:
		return crudDelete
	}
	return crudNone
}

func itemAction(method string) crudAction {
	switch method {
	case http.MethodGet, http.MethodHead:
		return crudGetByID
	case http.MethodPut:
		return crudUpdateByID
	case http.MethodPatch:
		return crudUpdateMergeByID
	case http.MethodDelete:
		return crudDeleteByID
	}
	return crudNone
}

// orderedRoutes returns the routes in declaration order: the folder tree
// depth first, then the routes no folder references.
func orderedRoutes(env *environment.Environment) []*environment.Route {
	byUUID := make(map[string]*environment.Route, len(env.Routes))
	for _, r := range env.Routes {
		byUUID[r.UUID] = r
	}
	folders := make(map[string]*environment.Folder, len(env.Folders))
	for _, f := range env.Folders {
		folders[f.UUID] = f
	}

	out := make([]*environment.Route, 0, len(env.Routes))
	seen := make(map[string]bool, len(env.Routes))
	visited := map[string]bool{}
	var walk func(children []environment.FolderChild)
	walk = func(children []environment.FolderChild) {
		for _, child := range children {
			switch child.Type {
			case "folder":
				f, ok := folders[child.UUID]
				if !ok || visited[f.UUID] {
					continue
				}
				visited[f.UUID] = true
				walk(f.Children)
			default:
				r, ok := byUUID[child.UUID]
				if !ok || seen[r.UUID] {
					continue
				}
				seen[r.UUID] = true
				out = append(out, r)
			}
		}
	}
	walk(env.RootChildren)

	for _, r := range env.Routes {
		if !seen[r.UUID] {
			seen[r.UUID] = true
			out = append(out, r)
		}
	}
	return out
}

// compileRoutes compiles the enabled routes of env in serving order.
func compileRoutes(env *environment.Environment, log *slog.Logger) []*compiledRoute {
	prefix := env.Prefix()
	var out []*compiledRoute
	for _, r := range orderedRoutes(env) {
		if r.Disabled {
			continue
		}
		pattern, err := matching.CompilePath(prefix, r.Endpoint)
		if err != nil {
			log.Error("route creation failed", "route", r.Endpoint, "uuid", r.UUID, "error", err)
			continue
		}
		cr := &compiledRoute{route: r, pattern: pattern}
		if r.Type == environment.RouteTypeCRUD {
			endpoint := strings.TrimSuffix(r.Endpoint, "/")
			item, err := matching.CompilePath(prefix, endpoint+"/:"+crudParam)
			if err != nil {
				log.Error("route creation failed", "route", r.Endpoint, "uuid", r.UUID, "error", err)
				continue
			}
			cr.item = item
		}
		out = append(out, cr)
	}
	return out
}

// dedupSlashes collapses runs of slashes in a path.
func dedupSlashes(path string) string {
	if !strings.Contains(path, "//") {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	prev := byte(0)
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' && prev == '/' {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String()
}
