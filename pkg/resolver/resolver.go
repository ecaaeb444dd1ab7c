// Package resolver picks the response a route serves for a request.
//
// Selection follows the route's response mode. In RULES and FALLBACK modes
// each response's rules are evaluated against the request in declaration
// order and the first response whose rules hold wins. Rule evaluation is
// total: a rule that cannot extract its target, or is malformed, simply
// does not match.
package resolver

import (
	"errors"
	"log/slog"

	"github.com/mockenv/mockenv/internal/matching"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/logging"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/runstate"
)

var (
	// ErrRouteDisabled is returned for disabled routes.
	ErrRouteDisabled = errors.New("route is disabled")
	// ErrNotFound means the route has nothing to serve: it has no
	// responses, or it is in FALLBACK mode and no rule matched.
	ErrNotFound = errors.New("no response selected")
)

// Outcome says how a response was selected.
type Outcome string

const (
	OutcomeStatic     Outcome = "static"
	OutcomeRandom     Outcome = "random"
	OutcomeSequential Outcome = "sequential"
	OutcomeRule       Outcome = "rule"
	OutcomeDefault    Outcome = "default"
)

// Selection is the result of Select.
type Selection struct {
	Response *environment.Response
	Index    int
	Outcome  Outcome
}

// Resolver selects responses. It is safe for concurrent use and holds
// only compiled-pattern caches, so one instance can outlive runs.
type Resolver struct {
	regexps *matching.RegexCache
	schemas *schemaCache
	log     *slog.Logger
}

// New returns a Resolver logging to log, or discarding when nil.
func New(log *slog.Logger) *Resolver {
	if log == nil {
		log = logging.Nop()
	}
	return &Resolver{
		regexps: matching.NewRegexCache(),
		schemas: newSchemaCache(),
		log:     logging.Component(log, "resolver"),
	}
}

// Select counts the request against the route and returns the response
// to serve.
func (r *Resolver) Select(route *environment.Route, req *request.Request, run *runstate.Run) (Selection, error) {
	if route.Disabled {
		return Selection{}, ErrRouteDisabled
	}
	number := run.NextRequestNumber(route.UUID)
	return r.choose(route, req, run, number, func(n int) int {
		return run.NextCursor(route.UUID, n)
	})
}

// SelectNth selects the response for the number-th message of a stream
// owned by the caller. Run counters are left untouched; SEQUENTIAL mode
// uses number itself as the position.
func (r *Resolver) SelectNth(route *environment.Route, req *request.Request, run *runstate.Run, number uint64) (Selection, error) {
	if route.Disabled {
		return Selection{}, ErrRouteDisabled
	}
	if number == 0 {
		number = 1
	}
	return r.choose(route, req, run, number, func(n int) int {
		return int((number - 1) % uint64(n))
	})
}

func (r *Resolver) choose(route *environment.Route, req *request.Request, run *runstate.Run, number uint64, cursor func(n int) int) (Selection, error) {
	if len(route.Responses) == 0 {
		return Selection{}, ErrNotFound
	}
	def, defIdx := route.DefaultResponse()

	switch mode := route.Mode(); mode {
	case environment.ModeStatic:
		return Selection{Response: def, Index: defIdx, Outcome: OutcomeStatic}, nil
	case environment.ModeRandom:
		i := run.Faker.IntN(len(route.Responses))
		return Selection{Response: route.Responses[i], Index: i, Outcome: OutcomeRandom}, nil
	case environment.ModeSequential:
		i := cursor(len(route.Responses))
		return Selection{Response: route.Responses[i], Index: i, Outcome: OutcomeSequential}, nil
	default:
		ev := r.newEvaluator(req, run, number)
		for i, resp := range route.Responses {
			if len(resp.Rules) == 0 {
				continue
			}
			if ev.matches(resp) {
				return Selection{Response: resp, Index: i, Outcome: OutcomeRule}, nil
			}
		}
		if mode == environment.ModeFallback {
			return Selection{}, ErrNotFound
		}
		return Selection{Response: def, Index: defIdx, Outcome: OutcomeDefault}, nil
	}
}
