package environment

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ValidationError describes one invalid field of an environment.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

var validModes = map[ResponseMode]bool{
	"":               true,
	ModeStatic:       true,
	ModeRules:        true,
	ModeRandom:       true,
	ModeSequential:   true,
	ModeFallback:     true,
	ModeDisableRules: true,
}

var validTargets = map[RuleTarget]bool{
	TargetBody: true, TargetQuery: true, TargetHeader: true, TargetCookie: true,
	TargetParams: true, TargetPath: true, TargetMethod: true,
	TargetRequestNumber: true, TargetGlobalVar: true, TargetDataBucket: true,
	TargetTemplating: true,
}

var validOperators = map[RuleOperator]bool{
	OpEquals: true, OpRegex: true, OpRegexI: true, OpNull: true,
	OpEmptyArray: true, OpArrayIncludes: true, OpValidJSONSchema: true,
}

var validBodyTypes = map[BodyType]bool{
	"": true, BodyInline: true, BodyFile: true, BodyDataBucket: true,
}

// Normalize fills defaults and repairs documents that lack a default
// response: when no response of a route is flagged, the first one is.
// When several are flagged, only the first keeps the flag.
func (e *Environment) Normalize() {
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
	if e.Port == 0 {
		e.Port = 3000
	}
	for _, b := range e.Data {
		if b.UUID == "" {
			b.UUID = uuid.NewString()
		}
	}
	for _, c := range e.Callbacks {
		if c.UUID == "" {
			c.UUID = uuid.NewString()
		}
		if c.Method == "" {
			c.Method = "post"
		}
	}
	for _, r := range e.Routes {
		if r == nil {
			continue
		}
		if r.UUID == "" {
			r.UUID = uuid.NewString()
		}
		if r.Type == "" {
			r.Type = RouteTypeHTTP
		}
		if r.Method == "" && r.Type != RouteTypeWS {
			r.Method = "get"
		}
		r.ResponseMode = ResponseMode(strings.ToUpper(string(r.ResponseMode)))
		r.StreamingMode = StreamingMode(strings.ToUpper(string(r.StreamingMode)))
		if r.Type == RouteTypeCRUD && r.DatabucketID != "" {
			for _, resp := range r.Responses {
				if resp != nil && resp.BodyType == "" && resp.DatabucketID == "" {
					resp.BodyType = BodyDataBucket
					resp.DatabucketID = r.DatabucketID
				}
			}
		}
		normalizeResponses(r.Responses)
	}
}

func normalizeResponses(responses []*Response) {
	seenDefault := false
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		if resp.UUID == "" {
			resp.UUID = uuid.NewString()
		}
		if resp.StatusCode == 0 {
			resp.StatusCode = 200
		}
		if resp.BodyType == "" {
			resp.BodyType = BodyInline
		}
		if resp.RulesOperator == "" {
			resp.RulesOperator = OperatorOR
		}
		if resp.CrudKey == "" {
			resp.CrudKey = "id"
		}
		for _, rule := range resp.Rules {
			if rule != nil && rule.Operator == "" {
				rule.Operator = OpEquals
			}
		}
		if resp.Default {
			if seenDefault {
				resp.Default = false
			}
			seenDefault = true
		}
	}
	if !seenDefault {
		for _, resp := range responses {
			if resp != nil {
				resp.Default = true
				break
			}
		}
	}
}

// Validate checks the invariants the engine relies on. All problems are
// reported, joined.
func (e *Environment) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if e.Port < 0 || e.Port > 65535 {
		add("port", "must be between 0 and 65535, got %d", e.Port)
	}
	if e.ProxyMode {
		if e.ProxyHost == "" {
			add("proxyHost", "required when proxyMode is enabled")
		} else if u, err := url.Parse(e.ProxyHost); err != nil || u.Scheme == "" || u.Host == "" {
			add("proxyHost", "must be an absolute URL, got %q", e.ProxyHost)
		}
	}
	if e.ProxyTimeout < 0 {
		add("proxyTimeout", "must not be negative")
	}
	if e.TLSOptions != nil && e.TLSOptions.Enabled {
		if (e.TLSOptions.CertPath == "") != (e.TLSOptions.KeyPath == "") {
			add("tlsOptions", "certPath and keyPath must be set together")
		}
	}

	seenRoutes := map[string]bool{}
	for i, r := range e.Routes {
		field := fmt.Sprintf("routes[%d]", i)
		if r == nil {
			add(field, "route is null")
			continue
		}
		if seenRoutes[r.UUID] {
			add(field+".uuid", "duplicate route uuid %s", r.UUID)
		}
		seenRoutes[r.UUID] = true
		errs = append(errs, validateRoute(e, r, field)...)
	}

	seenBuckets := map[string]bool{}
	for i, b := range e.Data {
		if b == nil {
			add(fmt.Sprintf("data[%d]", i), "data bucket is null")
			continue
		}
		if b.ID != "" && seenBuckets[b.ID] {
			add(fmt.Sprintf("data[%d].id", i), "duplicate data bucket id %s", b.ID)
		}
		seenBuckets[b.ID] = true
	}

	for i, c := range e.Callbacks {
		if c == nil || c.URI == "" {
			add(fmt.Sprintf("callbacks[%d].uri", i), "required")
		}
	}
	return errors.Join(errs...)
}

func validateRoute(e *Environment, r *Route, field string) []error {
	var errs []error
	add := func(f, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field + f, Message: fmt.Sprintf(format, args...)})
	}

	switch r.Type {
	case RouteTypeHTTP, RouteTypeCRUD, RouteTypeWS:
	default:
		add(".type", "unknown route type %q", r.Type)
	}
	if strings.TrimSpace(r.Endpoint) == "" && r.Type != RouteTypeHTTP {
		add(".endpoint", "required")
	}
	if !validModes[r.ResponseMode] {
		add(".responseMode", "unknown response mode %q", r.ResponseMode)
	}
	if r.Type == RouteTypeHTTP && len(r.Responses) == 0 {
		add(".responses", "at least one response is required")
	}
	if r.Type == RouteTypeCRUD && r.DatabucketID == "" {
		add(".databucketID", "required for crud routes")
	}
	if r.Type == RouteTypeWS {
		switch r.StreamingMode {
		case StreamingNone:
		case StreamingUnicast, StreamingBroadcast:
			if r.StreamingInterval <= 0 {
				add(".streamingInterval", "must be greater than 0 for streaming routes")
			}
		default:
			add(".streamingMode", "unknown streaming mode %q", r.StreamingMode)
		}
	}

	defaults := 0
	for i, resp := range r.Responses {
		rf := fmt.Sprintf(".responses[%d]", i)
		if resp == nil {
			add(rf, "response is null")
			continue
		}
		if resp.Default {
			defaults++
		}
		if resp.StatusCode < 100 || resp.StatusCode > 999 {
			add(rf+".statusCode", "must be between 100 and 999, got %d", resp.StatusCode)
		}
		if !validBodyTypes[resp.BodyType] {
			add(rf+".bodyType", "unknown body type %q", resp.BodyType)
		}
		if resp.RulesOperator != OperatorAND && resp.RulesOperator != OperatorOR && resp.RulesOperator != "" {
			add(rf+".rulesOperator", "must be AND or OR")
		}
		for j, rule := range resp.Rules {
			if rule == nil {
				continue
			}
			if !validTargets[rule.Target] {
				add(fmt.Sprintf("%s.rules[%d].target", rf, j), "unknown target %q", rule.Target)
			}
			if !validOperators[rule.Operator] {
				add(fmt.Sprintf("%s.rules[%d].operator", rf, j), "unknown operator %q", rule.Operator)
			}
		}
		for j, inv := range resp.Callbacks {
			if _, ok := e.CallbackByUUID(inv.UUID); !ok {
				add(fmt.Sprintf("%s.callbacks[%d].uuid", rf, j), "unknown callback %s", inv.UUID)
			}
		}
	}
	if len(r.Responses) > 0 && defaults != 1 {
		add(".responses", "exactly one default response is required, found %d", defaults)
	}
	return errs
}
