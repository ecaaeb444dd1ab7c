package resolver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/runstate"
)

// =============================================================================
// Fixtures
// =============================================================================

func newRun(buckets ...*environment.DataBucket) *runstate.Run {
	return runstate.New(&environment.Environment{Port: 3000, Data: buckets}, nil, runstate.Options{Seed: 1})
}

func jsonReq(method, target, body string) *request.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return request.FromHTTP(r, []byte(body))
}

func responses(n int) []*environment.Response {
	out := make([]*environment.Response, n)
	for i := range out {
		out[i] = &environment.Response{UUID: string(rune('a' + i)), StatusCode: 200 + i}
	}
	return out
}

func ruleRoute(rules ...*environment.Rule) *environment.Route {
	resps := responses(2)
	resps[0].Default = true
	resps[1].Rules = rules
	return &environment.Route{UUID: "route", ResponseMode: environment.ModeRules, Responses: resps}
}

// selects reports whether the rule response (index 1) was chosen.
func selects(t *testing.T, req *request.Request, run *runstate.Run, rules ...*environment.Rule) bool {
	t.Helper()
	sel, err := New(nil).Select(ruleRoute(rules...), req, run)
	require.NoError(t, err)
	return sel.Index == 1
}

// =============================================================================
// Modes
// =============================================================================

func TestSelect_Static(t *testing.T) {
	route := &environment.Route{UUID: "r", Responses: responses(3)}
	route.Responses[2].Default = true

	sel, err := New(nil).Select(route, jsonReq("GET", "/", ""), newRun())
	require.NoError(t, err)
	assert.Equal(t, 2, sel.Index)
	assert.Equal(t, OutcomeStatic, sel.Outcome)
}

func TestSelect_Disabled(t *testing.T) {
	route := &environment.Route{UUID: "r", Disabled: true, Responses: responses(1)}
	_, err := New(nil).Select(route, jsonReq("GET", "/", ""), newRun())
	assert.ErrorIs(t, err, ErrRouteDisabled)
}

func TestSelect_NoResponses(t *testing.T) {
	_, err := New(nil).Select(&environment.Route{UUID: "r"}, jsonReq("GET", "/", ""), newRun())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelect_Sequential(t *testing.T) {
	route := &environment.Route{UUID: "r", ResponseMode: environment.ModeSequential, Responses: responses(3)}
	res := New(nil)
	run := newRun()

	var got []int
	for i := 0; i < 7; i++ {
		sel, err := res.Select(route, jsonReq("GET", "/", ""), run)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSequential, sel.Outcome)
		got = append(got, sel.Index)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, got)

	restarted := newRun()
	sel, err := res.Select(route, jsonReq("GET", "/", ""), restarted)
	require.NoError(t, err)
	assert.Equal(t, 0, sel.Index, "restart rewinds the cursor")
}

func TestSelectNth_UsesCallerNumber(t *testing.T) {
	route := &environment.Route{UUID: "r", ResponseMode: environment.ModeSequential, Responses: responses(3)}
	run := newRun()
	res := New(nil)

	for n, want := range map[uint64]int{1: 0, 2: 1, 3: 2, 4: 0, 0: 0} {
		sel, err := res.SelectNth(route, jsonReq("GET", "/", ""), run, n)
		require.NoError(t, err)
		assert.Equal(t, want, sel.Index, "number %d", n)
	}
	assert.Zero(t, run.RequestCount("r"))
}

func TestSelect_Random(t *testing.T) {
	route := &environment.Route{UUID: "r", ResponseMode: environment.ModeRandom, Responses: responses(3)}
	res := New(nil)
	run := newRun()
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		sel, err := res.Select(route, jsonReq("GET", "/", ""), run)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRandom, sel.Outcome)
		seen[sel.Index] = true
	}
	assert.Len(t, seen, 3)
}

func TestSelect_RulesNoMatchFallsBackToDefault(t *testing.T) {
	route := ruleRoute(&environment.Rule{Target: environment.TargetBody, Modifier: "name", Value: "x", Operator: environment.OpEquals})
	sel, err := New(nil).Select(route, jsonReq("POST", "/", `{"name": "y"}`), newRun())
	require.NoError(t, err)
	assert.Equal(t, 0, sel.Index)
	assert.Equal(t, OutcomeDefault, sel.Outcome)
}

func TestSelect_FallbackNoMatch(t *testing.T) {
	route := ruleRoute(&environment.Rule{Target: environment.TargetBody, Modifier: "name", Value: "x", Operator: environment.OpEquals})
	route.ResponseMode = environment.ModeFallback

	_, err := New(nil).Select(route, jsonReq("POST", "/", `{"name": "y"}`), newRun())
	assert.ErrorIs(t, err, ErrNotFound)

	sel, err := New(nil).Select(route, jsonReq("POST", "/", `{"name": "x"}`), newRun())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRule, sel.Outcome)
}

func TestSelect_FirstMatchingResponseWins(t *testing.T) {
	resps := responses(3)
	rule := &environment.Rule{Target: environment.TargetMethod, Value: "get", Operator: environment.OpEquals}
	resps[1].Rules = []*environment.Rule{rule}
	resps[2].Rules = []*environment.Rule{rule}
	route := &environment.Route{UUID: "r", ResponseMode: environment.ModeRules, Responses: resps}

	sel, err := New(nil).Select(route, jsonReq("GET", "/", ""), newRun())
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Index)
}

// =============================================================================
// Rules
// =============================================================================

func TestRules_Operators(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/users/42?tags=a&tags=b&page=2", strings.NewReader(`{"user": {"name": "Ann", "age": 30, "roles": ["admin"], "empty": []}, "nothing": null}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Trace", "abc-123")
	r.AddCookie(&http.Cookie{Name: "session", Value: "s1"})
	req := request.FromHTTP(r, mustRead(r))
	req.Params = map[string]string{"id": "42"}

	tests := []struct {
		name string
		rule environment.Rule
		want bool
	}{
		{"body equals", environment.Rule{Target: "body", Modifier: "user.name", Value: "Ann", Operator: "equals"}, true},
		{"body equals loose number", environment.Rule{Target: "body", Modifier: "user.age", Value: "30", Operator: "equals"}, true},
		{"body jsonpath", environment.Rule{Target: "body", Modifier: "$.user.name", Value: "Ann", Operator: "equals"}, true},
		{"body regex", environment.Rule{Target: "body", Modifier: "user.name", Value: "^A", Operator: "regex"}, true},
		{"body regex_i", environment.Rule{Target: "body", Modifier: "user.name", Value: "^ann$", Operator: "regex_i"}, true},
		{"body regex case sensitive", environment.Rule{Target: "body", Modifier: "user.name", Value: "^ann$", Operator: "regex"}, false},
		{"whole body regex", environment.Rule{Target: "body", Value: `"Ann"`, Operator: "regex"}, true},
		{"body null for json null", environment.Rule{Target: "body", Modifier: "nothing", Operator: "null"}, true},
		{"body null for missing", environment.Rule{Target: "body", Modifier: "missing", Operator: "null"}, true},
		{"body not null", environment.Rule{Target: "body", Modifier: "user", Operator: "null"}, false},
		{"empty array", environment.Rule{Target: "body", Modifier: "user.empty", Operator: "empty_array"}, true},
		{"non empty array", environment.Rule{Target: "body", Modifier: "user.roles", Operator: "empty_array"}, false},
		{"array includes", environment.Rule{Target: "body", Modifier: "user.roles", Value: "admin", Operator: "array_includes"}, true},
		{"array includes missing", environment.Rule{Target: "body", Modifier: "user.roles", Value: "root", Operator: "array_includes"}, false},
		{"equals on array element", environment.Rule{Target: "query", Modifier: "tags", Value: "b", Operator: "equals"}, true},
		{"query", environment.Rule{Target: "query", Modifier: "page", Value: "2", Operator: "equals"}, true},
		{"header", environment.Rule{Target: "header", Modifier: "x-trace", Value: `^abc-\d+$`, Operator: "regex"}, true},
		{"missing header", environment.Rule{Target: "header", Modifier: "x-none", Value: "", Operator: "equals"}, false},
		{"cookie", environment.Rule{Target: "cookie", Modifier: "session", Value: "s1", Operator: "equals"}, true},
		{"cookie needs modifier", environment.Rule{Target: "cookie", Value: "s1", Operator: "equals"}, false},
		{"params", environment.Rule{Target: "params", Modifier: "id", Value: "42", Operator: "equals"}, true},
		{"path", environment.Rule{Target: "path", Value: "/users/42", Operator: "equals"}, true},
		{"path with query", environment.Rule{Target: "path", Value: `page=2$`, Operator: "regex"}, true},
		{"method", environment.Rule{Target: "method", Value: "post", Operator: "equals"}, true},
		{"request number", environment.Rule{Target: "request_number", Value: "1", Operator: "equals"}, true},
		{"templating", environment.Rule{Target: "templating", Modifier: "{{body 'user.name'}}", Value: "Ann", Operator: "equals"}, true},
		{"templated value", environment.Rule{Target: "body", Modifier: "user.age", Value: "{{add 10 20}}", Operator: "equals"}, true},
		{"invert", environment.Rule{Target: "method", Value: "post", Operator: "equals", Invert: true}, false},
		{"invalid regex", environment.Rule{Target: "body", Modifier: "user.name", Value: "(", Operator: "regex"}, false},
		{"unknown target", environment.Rule{Target: "nope", Value: "x", Operator: "equals"}, false},
		{"empty target", environment.Rule{Value: "x", Operator: "equals"}, false},
		{"forbidden segment", environment.Rule{Target: "body", Modifier: "__proto__.x", Value: "", Operator: "equals"}, false},
		{"malicious jsonpath", environment.Rule{Target: "body", Modifier: "$..[?(@.constructor('x'))]", Value: "x", Operator: "equals"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			assert.Equal(t, tt.want, selects(t, req, newRun(), &rule))
		})
	}
}

func mustRead(r *http.Request) []byte {
	body, _ := request.ReadAll(r.Body, 1<<20)
	return body
}

func TestRules_GlobalVarAndDataBucket(t *testing.T) {
	run := newRun(&environment.DataBucket{ID: "cfg", Name: "Config", Value: `{"mode": "on"}`})
	run.Globals.Set("flag", "yes")
	req := jsonReq("GET", "/", "")

	assert.True(t, selects(t, req, run, &environment.Rule{Target: "global_var", Modifier: "flag", Value: "yes", Operator: "equals"}))
	assert.False(t, selects(t, req, run, &environment.Rule{Target: "global_var", Modifier: "other", Value: "yes", Operator: "equals"}))
	assert.True(t, selects(t, req, run, &environment.Rule{Target: "data_bucket", Modifier: "cfg.mode", Value: "on", Operator: "equals"}))
	assert.True(t, selects(t, req, run, &environment.Rule{Target: "data_bucket", Modifier: "Config.mode", Value: "on", Operator: "equals"}))
}

func TestRules_Operator(t *testing.T) {
	req := jsonReq("GET", "/", "")
	yes := &environment.Rule{Target: "method", Value: "get", Operator: "equals"}
	no := &environment.Rule{Target: "method", Value: "put", Operator: "equals"}

	and := ruleRoute(yes, no)
	sel, err := New(nil).Select(and, req, newRun())
	require.NoError(t, err)
	assert.Equal(t, 0, sel.Index)

	or := ruleRoute(yes, no)
	or.Responses[1].RulesOperator = environment.OperatorOR
	sel, err = New(nil).Select(or, req, newRun())
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Index)
}

func TestRules_ValidJSONSchema(t *testing.T) {
	run := newRun(&environment.DataBucket{ID: "schemas", Name: "Schemas", Value: `{
		"user": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}, "email": {"type": "string", "format": "email"}}}
	}`})
	rule := &environment.Rule{Target: "body", Value: "schemas.user", Operator: "valid_json_schema"}

	assert.True(t, selects(t, jsonReq("POST", "/", `{"name": "Ann"}`), run, rule))
	assert.False(t, selects(t, jsonReq("POST", "/", `{"age": 3}`), run, rule))
	assert.False(t, selects(t, jsonReq("POST", "/", `{"name": "Ann", "email": "nope"}`), run, rule))

	missing := &environment.Rule{Target: "body", Value: "schemas.order", Operator: "valid_json_schema"}
	assert.False(t, selects(t, jsonReq("POST", "/", `{"name": "Ann"}`), run, missing))
}

func TestRules_RequestNumber(t *testing.T) {
	route := ruleRoute(&environment.Rule{Target: "request_number", Value: "^[2-3]$", Operator: "regex"})
	res := New(nil)
	run := newRun()

	var got []int
	for i := 0; i < 4; i++ {
		sel, err := res.Select(route, jsonReq("GET", "/", ""), run)
		require.NoError(t, err)
		got = append(got, sel.Index)
	}
	assert.Equal(t, []int{0, 1, 1, 0}, got)
}

func TestRules_WebSocketMessage(t *testing.T) {
	base := jsonReq("GET", "/ws", "")
	msg := base.WithMessage([]byte(`{"type": "ping"}`))
	assert.True(t, selects(t, msg, newRun(), &environment.Rule{Target: "body", Modifier: "type", Value: "ping", Operator: "equals"}))
}
