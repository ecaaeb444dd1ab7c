package resolver

import (
	"strings"

	"github.com/mockenv/mockenv/internal/matching"
	"github.com/mockenv/mockenv/internal/selector"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/runstate"
	"github.com/mockenv/mockenv/pkg/template"
)

// evaluator evaluates the rules of one request. Bucket targets are
// materialized at most once per request.
type evaluator struct {
	r      *Resolver
	req    *request.Request
	run    *runstate.Run
	ctx    *template.Context
	number uint64

	buckets map[string]any
}

func (r *Resolver) newEvaluator(req *request.Request, run *runstate.Run, number uint64) *evaluator {
	// Rules may call status; the throwaway state keeps that out of the
	// response.
	ctx := run.TemplateContext(req, &template.ResponseState{})
	return &evaluator{r: r, req: req, run: run, ctx: ctx, number: number}
}

func (e *evaluator) matches(resp *environment.Response) bool {
	if resp.RulesOperator == environment.OperatorOR {
		for _, rule := range resp.Rules {
			if e.rule(rule) {
				return true
			}
		}
		return false
	}
	for _, rule := range resp.Rules {
		if !e.rule(rule) {
			return false
		}
	}
	return true
}

// template renders src, returning it unchanged when rendering fails.
func (e *evaluator) template(src string) string {
	if !strings.Contains(src, "{{") {
		return src
	}
	out, err := e.run.Engine.Render(src, e.ctx)
	if err != nil {
		e.r.log.Debug("rule template failed", "template", src, "error", err)
		return src
	}
	return out
}

func (e *evaluator) dataBuckets() map[string]any {
	if e.buckets == nil {
		e.buckets = e.run.Buckets.Targets(e.ctx)
	}
	return e.buckets
}

func (e *evaluator) rule(rule *environment.Rule) bool {
	if rule == nil || rule.Target == "" {
		return false
	}
	result := e.check(rule)
	if rule.Invert {
		return !result
	}
	return result
}

func (e *evaluator) check(rule *environment.Rule) bool {
	modifier := e.template(rule.Modifier)
	target, ok := e.extract(rule, modifier)

	switch rule.Operator {
	case environment.OpNull:
		return !ok || target == nil || target == ""
	case environment.OpEmptyArray:
		arr, isArr := target.([]any)
		return ok && isArr && len(arr) == 0
	}
	if !ok {
		return false
	}
	if target == nil {
		target = ""
	}

	switch rule.Operator {
	case environment.OpValidJSONSchema:
		return e.validSchema(rule.Value, target)
	}

	value := e.template(rule.Value)

	switch rule.Operator {
	case environment.OpArrayIncludes:
		if modifier == "" {
			return false
		}
		arr, isArr := target.([]any)
		if !isArr {
			return false
		}
		for _, item := range arr {
			if matching.LooseEqual(item, value) {
				return true
			}
		}
		return false
	case environment.OpRegex, environment.OpRegexI:
		re, err := e.r.regexps.Get(value, rule.Operator == environment.OpRegexI)
		if err != nil {
			return false
		}
		if arr, isArr := target.([]any); isArr {
			for _, item := range arr {
				if re.MatchString(matching.Stringify(item)) {
					return true
				}
			}
			return false
		}
		return re.MatchString(matching.Stringify(target))
	default:
		if arr, isArr := target.([]any); isArr {
			for _, item := range arr {
				if matching.LooseEqual(item, value) {
					return true
				}
			}
			return false
		}
		return matching.LooseEqual(target, value)
	}
}

// extract returns the value the rule tests. The boolean is false when the
// target is absent.
func (e *evaluator) extract(rule *environment.Rule, modifier string) (any, bool) {
	req := e.req
	switch rule.Target {
	case environment.TargetRequestNumber:
		return float64(e.number), true
	case environment.TargetCookie:
		if modifier == "" || req == nil {
			return nil, false
		}
		v, ok := req.Cookies[modifier]
		return v, ok
	case environment.TargetPath:
		if req == nil {
			return nil, false
		}
		return []any{req.OriginalURL, req.Path}, true
	case environment.TargetMethod:
		if req == nil {
			return nil, false
		}
		return strings.ToLower(req.Method), true
	case environment.TargetHeader:
		if modifier == "" {
			return "", true
		}
		v, ok := req.HeaderValue(modifier)
		return v, ok
	case environment.TargetTemplating:
		return modifier, true
	}

	var source any
	switch rule.Target {
	case environment.TargetBody:
		if req == nil {
			return nil, false
		}
		if modifier == "" {
			return e.wholeBody(rule.Operator), true
		}
		source = req.Body
	case environment.TargetQuery:
		if req == nil {
			return nil, false
		}
		if modifier == "" {
			return req.Query, true
		}
		source = req.Query
	case environment.TargetParams:
		source = req.ParamMap()
	case environment.TargetGlobalVar:
		source = e.run.Globals.Snapshot()
	case environment.TargetDataBucket:
		source = e.dataBuckets()
	default:
		return nil, false
	}
	if modifier == "" {
		return nil, false
	}
	return lookup(source, modifier)
}

// wholeBody is the body as equality and regex rules see it: the raw text.
// Other operators see the parsed body when there is one.
func (e *evaluator) wholeBody(op environment.RuleOperator) any {
	switch op {
	case environment.OpEquals, environment.OpRegex, environment.OpRegexI, "":
		return e.req.BodyString()
	}
	if e.req.Body != nil {
		return e.req.Body
	}
	return e.req.BodyString()
}

// lookup selects path from a container. Scalars have no members.
func lookup(source any, path string) (any, bool) {
	switch source.(type) {
	case map[string]any, []any:
		return selector.Get(source, path)
	}
	return nil, false
}

func (e *evaluator) validSchema(path string, target any) bool {
	schema, ok := lookup(e.dataBuckets(), path)
	if !ok || !truthy(schema) {
		return false
	}
	s, err := e.r.schemas.get(schema)
	if err != nil {
		e.r.log.Debug("json schema compile failed", "path", path, "error", err)
		return false
	}
	return s.Validate(target) == nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	}
	return true
}
