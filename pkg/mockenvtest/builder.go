package mockenvtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mockenv/mockenv/pkg/environment"
)

// RouteBuilder builds one route. Methods configure the current response;
// Otherwise starts the next one.
type RouteBuilder struct {
	server *Server
	route  *environment.Route
	resp   *environment.Response
}

// Route starts a route for method and endpoint. Endpoints use the route
// syntax of environment documents ("users/:id"); a leading slash is
// dropped. Method "all" matches every method.
func (m *Server) Route(method, endpoint string) *RouteBuilder {
	b := &RouteBuilder{
		server: m,
		route: &environment.Route{
			Type:     environment.RouteTypeHTTP,
			Method:   strings.ToLower(method),
			Endpoint: strings.TrimPrefix(endpoint, "/"),
		},
	}
	b.next()
	return b
}

func (b *RouteBuilder) next() {
	b.resp = &environment.Response{StatusCode: http.StatusOK, BodyType: environment.BodyInline}
	b.route.Responses = append(b.route.Responses, b.resp)
}

// WithStatus sets the status code. Default is 200.
func (b *RouteBuilder) WithStatus(status int) *RouteBuilder {
	b.resp.StatusCode = status
	return b
}

// WithBody sets a templated body.
func (b *RouteBuilder) WithBody(body string) *RouteBuilder {
	b.resp.Body = body
	return b
}

// WithJSON encodes v as the body and sets a JSON content type. String
// values inside v are still templated.
func (b *RouteBuilder) WithJSON(v any) *RouteBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		b.server.t.Fatalf("mockenvtest: WithJSON: %v", err)
	}
	b.resp.Body = string(data)
	return b.WithHeader("Content-Type", "application/json")
}

// WithHeader adds a templated response header.
func (b *RouteBuilder) WithHeader(key, value string) *RouteBuilder {
	b.resp.Headers = append(b.resp.Headers, environment.Header{Key: key, Value: value})
	return b
}

// WithLatency delays the response.
func (b *RouteBuilder) WithLatency(d time.Duration) *RouteBuilder {
	b.resp.Latency = int(d.Milliseconds())
	return b
}

// WithFile serves the file at path as the body.
func (b *RouteBuilder) WithFile(path string) *RouteBuilder {
	b.resp.BodyType = environment.BodyFile
	b.resp.FilePath = path
	return b
}

// When adds a rule to the current response and switches the route to
// rule-based selection.
func (b *RouteBuilder) When(target environment.RuleTarget, modifier string, op environment.RuleOperator, value string) *RouteBuilder {
	b.resp.Rules = append(b.resp.Rules, &environment.Rule{
		Target:   target,
		Modifier: modifier,
		Operator: op,
		Value:    value,
	})
	if b.route.ResponseMode == "" {
		b.route.ResponseMode = environment.ModeRules
	}
	return b
}

// Otherwise starts the next response of the route.
func (b *RouteBuilder) Otherwise() *RouteBuilder {
	b.next()
	return b
}

// Sequential serves the responses in turn.
func (b *RouteBuilder) Sequential() *RouteBuilder {
	b.route.ResponseMode = environment.ModeSequential
	return b
}

// Random serves a random response.
func (b *RouteBuilder) Random() *RouteBuilder {
	b.route.ResponseMode = environment.ModeRandom
	return b
}

// Reply registers the route. With rules, the last response without rules
// is the default; otherwise the first response is.
func (b *RouteBuilder) Reply() {
	b.server.t.Helper()
	def := b.route.Responses[0]
	if b.route.ResponseMode == environment.ModeRules {
		for _, r := range b.route.Responses {
			if len(r.Rules) == 0 {
				def = r
			}
		}
	}
	def.Default = true
	b.server.addRoute(b.route)
}
