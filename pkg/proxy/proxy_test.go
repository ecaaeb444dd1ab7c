package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/runstate"
)

type upstreamCall struct {
	method string
	uri    string
	header http.Header
	body   string
}

func newUpstream(t *testing.T, h http.HandlerFunc) (*httptest.Server, chan upstreamCall) {
	t.Helper()
	calls := make(chan upstreamCall, 8)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls <- upstreamCall{method: r.Method, uri: r.URL.RequestURI(), header: r.Header.Clone(), body: string(body)}
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts, calls
}

func forward(t *testing.T, p *Proxy, env *environment.Environment, method, target, body string) (*httptest.ResponseRecorder, Result) {
	t.Helper()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	run := runstate.New(env, nil, runstate.Options{Seed: 1})
	tctx := run.TemplateContext(request.FromHTTP(r, []byte(body)), nil)
	w := httptest.NewRecorder()
	w.Header().Set("X-Env", "from-environment")
	w.Header().Set("Content-Type", "text/html")
	return w, p.Forward(w, r, []byte(body), env, tctx)
}

func TestEnabled(t *testing.T) {
	assert.False(t, Enabled(nil))
	assert.False(t, Enabled(&environment.Environment{ProxyHost: "http://up"}))
	assert.False(t, Enabled(&environment.Environment{ProxyMode: true, ProxyHost: "not a url"}))
	assert.True(t, Enabled(&environment.Environment{ProxyMode: true, ProxyHost: "https://up.example.com/api"}))
}

func TestTargetURL(t *testing.T) {
	env := &environment.Environment{ProxyHost: "http://up/base/", EndpointPrefix: "v1"}
	assert.Equal(t, "http://up/base/v1/users?x=1", targetURL(env, "/v1/users", "x=1"))

	env.ProxyRemovePrefix = true
	assert.Equal(t, "http://up/base/users", targetURL(env, "/v1/users", ""))
	assert.Equal(t, "http://up/base/v1users", targetURL(env, "/v1users", ""), "prefix must end at a segment")
	assert.Equal(t, "http://up/base/a%2Fb", targetURL(env, "/v1/a%2Fb", ""))
}

func TestForward_HeadersAndBody(t *testing.T) {
	up, calls := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("Set-Cookie", "sid=1; Domain=up.local; Secure; Path=/")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"ok":true}`)
	})

	env := &environment.Environment{
		ProxyMode:       true,
		ProxyHost:       up.URL,
		ProxyReqHeaders: []environment.Header{{Key: "X-Req", Value: "{{method}}"}},
		ProxyResHeaders: []environment.Header{{Key: "X-Res", Value: "{{add 1 1}}"}},
	}
	p := New(nil, Options{})

	w, res := forward(t, p, env, http.MethodPost, "/orders?limit=2", `{"a":1}`)
	require.NoError(t, res.Err)

	call := <-calls
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/orders?limit=2", call.uri)
	assert.Equal(t, `{"a":1}`, call.body)
	assert.Equal(t, "POST", call.header.Get("X-Req"))
	assert.NotEmpty(t, call.header.Get("X-Forwarded-For"))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "upstream overrides environment headers")
	assert.Equal(t, "from-environment", w.Header().Get("X-Env"))
	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))
	assert.Equal(t, "2", w.Header().Get("X-Res"))
	assert.Equal(t, []string{"sid=1; Path=/"}, w.Header().Values("Set-Cookie"))
	assert.Equal(t, http.StatusCreated, res.StatusCode)
}

func TestForward_Timeout(t *testing.T) {
	release := make(chan struct{})
	up, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	env := &environment.Environment{ProxyMode: true, ProxyHost: up.URL, ProxyTimeout: 50}
	w, res := forward(t, New(nil, Options{}), env, http.MethodGet, "/slow", "")

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Error(t, res.Err)
	assert.Contains(t, w.Body.String(), "Error while proxying the request")
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestForward_Unreachable(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	url := up.URL
	up.Close()

	env := &environment.Environment{ProxyMode: true, ProxyHost: url, ProxyTimeout: int((2 * time.Second).Milliseconds())}
	w, res := forward(t, New(nil, Options{}), env, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Error(t, res.Err)
}

func TestForward_Records(t *testing.T) {
	up, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[1,2,3]`)
	})

	rec := NewRecorder(&Filter{ExcludePaths: []string{"/health"}}, nil)
	env := &environment.Environment{ProxyMode: true, ProxyHost: up.URL, RecordRoutes: true}
	p := New(nil, Options{Recorder: rec})

	forward(t, p, env, http.MethodGet, "/items/1:2", "")
	forward(t, p, env, http.MethodGet, "/items/1:2", "")
	forward(t, p, env, http.MethodGet, "/health", "")

	routes := rec.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "get", routes[0].Method)
	assert.Equal(t, `items/1\:2`, routes[0].Endpoint)
	assert.Equal(t, `[1,2,3]`, routes[0].Responses[0].Body)

	path := filepath.Join(t.TempDir(), "env.json")
	require.NoError(t, rec.Save(env, path))
	saved, err := environment.LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, saved.Routes, 1)
	assert.Empty(t, env.Routes, "the running environment is not modified")
}

func TestRecorder_SkipsKnownRoutes(t *testing.T) {
	env := &environment.Environment{Routes: []*environment.Route{{UUID: "r", Type: environment.RouteTypeHTTP, Method: "get", Endpoint: "users"}}}
	rec := NewRecorder(nil, nil)
	assert.False(t, rec.Record(env, environment.Transaction{Method: "GET", Path: "/users", StatusCode: 200}))
	assert.True(t, rec.Record(env, environment.Transaction{Method: "GET", Path: "/orders", StatusCode: 200}))
	assert.NoError(t, NewRecorder(nil, nil).Save(env, ""), "nothing recorded, nothing saved")
}
