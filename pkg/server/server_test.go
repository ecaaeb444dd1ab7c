package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/metrics"
	"github.com/mockenv/mockenv/pkg/requestlog"
	"github.com/mockenv/mockenv/pkg/template"
)

func newTestServer(t *testing.T, env *environment.Environment, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	env.Normalize()
	s := New(env, append([]Option{WithSeed(7)}, opts...)...)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return s, ts
}

type result struct {
	status int
	header http.Header
	body   string
}

func do(t *testing.T, method, url, body string, header map[string]string) result {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return result{status: resp.StatusCode, header: resp.Header, body: string(data)}
}

func get(t *testing.T, url string) result {
	t.Helper()
	return do(t, http.MethodGet, url, "", nil)
}

func jsonHeader() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func TestServe_TemplatedBody(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{{
			Method:   "get",
			Endpoint: "users/:id",
			Responses: []*environment.Response{{
				StatusCode: 201,
				Headers:    []environment.Header{{Key: "Content-Type", Value: "application/json"}},
				Body:       `{"id":"{{urlParam 'id'}}","q":"{{queryParam 'q'}}"}`,
			}},
		}},
	}
	_, ts := newTestServer(t, env)

	res := get(t, ts.URL+"/users/42?q=hi")
	assert.Equal(t, http.StatusCreated, res.status)
	assert.Equal(t, "application/json", res.header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":"42","q":"hi"}`, res.body)
}

func TestServe_StatusHelperOverridesStatus(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{{
			Endpoint:  "teapot",
			Responses: []*environment.Response{{Body: `{{status 418}}short and stout`}},
		}},
	}
	_, ts := newTestServer(t, env)

	res := get(t, ts.URL+"/teapot")
	assert.Equal(t, http.StatusTeapot, res.status)
	assert.Equal(t, "short and stout", res.body)
}

func TestServe_TemplateErrorIsReportedInBody(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{{
			Endpoint:  "broken",
			Responses: []*environment.Response{{StatusCode: 404, Body: `{{#if a}}unclosed`}},
		}},
	}
	_, ts := newTestServer(t, env)

	res := get(t, ts.URL+"/broken")
	assert.Equal(t, http.StatusOK, res.status)
	assert.True(t, strings.HasPrefix(res.body, routeServingError), res.body)
}

func TestServe_DisableTemplating(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{{
			Endpoint:  "raw",
			Responses: []*environment.Response{{Body: `{{urlParam 'x'}}`, DisableTemplating: true}},
		}},
	}
	_, ts := newTestServer(t, env)
	assert.Equal(t, `{{urlParam 'x'}}`, get(t, ts.URL+"/raw").body)
}

func TestServe_HeaderMerge(t *testing.T) {
	env := &environment.Environment{
		Headers: []environment.Header{
			{Key: "X-Env", Value: "env"},
			{Key: "X-Shared", Value: "env"},
		},
		Routes: []*environment.Route{{
			Endpoint: "h",
			Responses: []*environment.Response{{
				Headers: []environment.Header{
					{Key: "X-Shared", Value: "route"},
					{Key: "X-Method", Value: "{{method}}"},
				},
			}},
		}},
	}
	_, ts := newTestServer(t, env)

	res := get(t, ts.URL+"/h")
	assert.Equal(t, "env", res.header.Get("X-Env"))
	assert.Equal(t, "route", res.header.Get("X-Shared"))
	assert.Equal(t, "GET", res.header.Get("X-Method"))
}

func TestServe_JSONContentTypeFromEnvironment(t *testing.T) {
	env := &environment.Environment{
		Headers: []environment.Header{{Key: "Content-Type", Value: "application/json; charset=utf-8"}},
		Routes: []*environment.Route{{
			Endpoint:  "j",
			Responses: []*environment.Response{{Body: `{}`}},
		}},
	}
	_, ts := newTestServer(t, env)
	assert.Equal(t, "application/json", get(t, ts.URL+"/j").header.Get("Content-Type"))
}

func TestServe_RulesAndSequential(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{
			{
				Endpoint:     "rules",
				ResponseMode: environment.ModeRules,
				Responses: []*environment.Response{
					{Body: "admin", Rules: []*environment.Rule{
						{Target: environment.TargetQuery, Modifier: "role", Value: "admin"},
					}},
					{Body: "fallback", Default: true},
				},
			},
			{
				Endpoint:     "seq",
				ResponseMode: environment.ModeSequential,
				Responses:    []*environment.Response{{Body: "one"}, {Body: "two"}},
			},
		},
	}
	_, ts := newTestServer(t, env)

	assert.Equal(t, "admin", get(t, ts.URL+"/rules?role=admin").body)
	assert.Equal(t, "fallback", get(t, ts.URL+"/rules?role=guest").body)

	var got []string
	for range 3 {
		got = append(got, get(t, ts.URL+"/seq").body)
	}
	assert.Equal(t, []string{"one", "two", "one"}, got)
}

func TestServe_FallbackModePassesToNextRoute(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{
			{
				Endpoint:     "items/:id",
				ResponseMode: environment.ModeFallback,
				Responses: []*environment.Response{{Body: "special", Rules: []*environment.Rule{
					{Target: environment.TargetParams, Modifier: "id", Value: "1"},
				}}},
			},
			{Endpoint: "items/:id", Responses: []*environment.Response{{Body: "generic"}}},
		},
	}
	_, ts := newTestServer(t, env)

	assert.Equal(t, "special", get(t, ts.URL+"/items/1").body)
	assert.Equal(t, "generic", get(t, ts.URL+"/items/2").body)
}

func TestServe_RouteOrderFollowsFolders(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{
			{UUID: "a", Endpoint: "x/:p", Responses: []*environment.Response{{Body: "param"}}},
			{UUID: "b", Endpoint: "x/fixed", Responses: []*environment.Response{{Body: "fixed"}}},
		},
		Folders: []*environment.Folder{
			{UUID: "f", Children: []environment.FolderChild{{Type: "route", UUID: "b"}}},
		},
		RootChildren: []environment.FolderChild{{Type: "folder", UUID: "f"}, {Type: "route", UUID: "a"}},
	}
	_, ts := newTestServer(t, env)
	assert.Equal(t, "fixed", get(t, ts.URL+"/x/fixed").body)
}

func TestServe_DisabledRouteAndNotFound(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{
			{Endpoint: "off", Disabled: true, Responses: []*environment.Response{{Body: "nope"}}},
		},
	}
	_, ts := newTestServer(t, env)

	res := get(t, ts.URL+"/off")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "Cannot GET /off", res.body)
}

func TestServe_EndpointPrefixAndDuplicateSlashes(t *testing.T) {
	env := &environment.Environment{
		EndpointPrefix: "api/v1",
		Routes:         []*environment.Route{{Endpoint: "ping", Responses: []*environment.Response{{Body: "pong"}}}},
	}
	_, ts := newTestServer(t, env)

	assert.Equal(t, "pong", get(t, ts.URL+"/api/v1/ping").body)
	assert.Equal(t, "pong", get(t, ts.URL+"/api//v1//ping").body)
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/ping").status)
}

func TestServe_CORSPreflight(t *testing.T) {
	env := &environment.Environment{
		CORS:    true,
		Headers: []environment.Header{{Key: "Access-Control-Allow-Origin", Value: "https://app.example.com"}},
		Routes:  []*environment.Route{{Method: "post", Endpoint: "things", Responses: []*environment.Response{{}}}},
	}
	_, ts := newTestServer(t, env)

	res := do(t, http.MethodOptions, ts.URL+"/things", "", nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "https://app.example.com", res.header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, res.header.Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestServe_Latency(t *testing.T) {
	env := &environment.Environment{
		Latency: 30,
		Routes:  []*environment.Route{{Endpoint: "slow", Responses: []*environment.Response{{Latency: 30}}}},
	}
	_, ts := newTestServer(t, env)

	start := time.Now()
	get(t, ts.URL+"/slow")
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestServe_BodyTooLarge(t *testing.T) {
	env := &environment.Environment{Routes: []*environment.Route{{Method: "post", Endpoint: "up", Responses: []*environment.Response{{}}}}}
	env.Normalize()
	s := New(env)
	t.Cleanup(func() { _ = s.Close() })

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/up", strings.NewReader(strings.Repeat("x", MaxRequestBodySize+1)))
	s.ServeHTTP(w, r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "body_too_large")
}

func TestServe_DataBucketBody(t *testing.T) {
	env := &environment.Environment{
		Data: []*environment.DataBucket{{ID: "cfg", Name: "Config", Value: `{"mode":"dark","n":1}`}},
		Routes: []*environment.Route{
			{Endpoint: "cfg", Responses: []*environment.Response{{BodyType: environment.BodyDataBucket, DatabucketID: "cfg"}}},
			{Endpoint: "missing", Responses: []*environment.Response{{BodyType: environment.BodyDataBucket, DatabucketID: "zzz", Body: "{{method}}"}}},
		},
	}
	_, ts := newTestServer(t, env)

	res := get(t, ts.URL+"/cfg")
	assert.JSONEq(t, `{"mode":"dark","n":1}`, res.body)
	assert.Equal(t, "{{method}}", get(t, ts.URL+"/missing").body, "inline fallback is not templated")
}

func TestServe_Files(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.json"), []byte(`{"id":"{{urlParam 'id'}}"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte("0123456789"), 0o600))

	env := &environment.Environment{
		Routes: []*environment.Route{
			{Endpoint: "users/:id", Responses: []*environment.Response{{BodyType: environment.BodyFile, FilePath: "user.json", SendFileAsBody: true}}},
			{Endpoint: "download", Responses: []*environment.Response{{BodyType: environment.BodyFile, FilePath: "blob.bin"}}},
			{Endpoint: "gone", Responses: []*environment.Response{{BodyType: environment.BodyFile, FilePath: "missing.json", FallbackTo404: true, Body: "not here"}}},
			{Endpoint: "broken", Responses: []*environment.Response{{StatusCode: 202, BodyType: environment.BodyFile, FilePath: "missing.json"}}},
		},
	}
	_, ts := newTestServer(t, env, WithBaseDir(dir))

	res := get(t, ts.URL+"/users/7")
	assert.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `{"id":"7"}`, res.body)
	assert.Contains(t, res.header.Get("Content-Type"), "application/json")
	assert.Empty(t, res.header.Get("Content-Disposition"))

	res = get(t, ts.URL+"/download")
	assert.Equal(t, "0123456789", res.body)
	assert.Equal(t, `attachment; filename="blob.bin"`, res.header.Get("Content-Disposition"))

	res = do(t, http.MethodGet, ts.URL+"/download", "", map[string]string{"Range": "bytes=2-4"})
	assert.Equal(t, http.StatusPartialContent, res.status)
	assert.Equal(t, "234", res.body)

	res = get(t, ts.URL+"/gone")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "not here", res.body)

	res = get(t, ts.URL+"/broken")
	assert.Equal(t, http.StatusAccepted, res.status)
	assert.True(t, strings.HasPrefix(res.body, fileServingError), res.body)
}

func TestServe_ProxyFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		_, _ = io.WriteString(w, "from upstream "+r.URL.Path)
	}))
	t.Cleanup(upstream.Close)

	env := &environment.Environment{
		ProxyMode: true,
		ProxyHost: upstream.URL,
		Routes:    []*environment.Route{{Endpoint: "local", Responses: []*environment.Response{{Body: "local"}}}},
	}
	s, ts := newTestServer(t, env)

	assert.Equal(t, "local", get(t, ts.URL+"/local").body)
	res := get(t, ts.URL+"/remote")
	assert.Equal(t, "from upstream /remote", res.body)
	assert.Equal(t, "yes", res.header.Get("X-Upstream"))

	entries := s.RequestLog().List(&requestlog.Filter{Path: "/remote"})
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Proxied)
}

func TestServe_FallbackPassThroughHeaderOrder(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Shared", "upstream")
		w.Header().Set("X-Over", "upstream")
		_, _ = io.WriteString(w, "upstream")
	}))
	t.Cleanup(upstream.Close)

	env := &environment.Environment{
		ProxyMode:       true,
		ProxyHost:       upstream.URL,
		Headers:         []environment.Header{{Key: "X-Env", Value: "env"}, {Key: "X-Shared", Value: "env"}},
		ProxyResHeaders: []environment.Header{{Key: "X-Over", Value: "proxy"}},
		Routes: []*environment.Route{{
			Endpoint:     "remote",
			ResponseMode: environment.ModeFallback,
			Responses: []*environment.Response{{
				Body:    "local",
				Headers: []environment.Header{{Key: "X-Route", Value: "route"}},
				Rules:   []*environment.Rule{{Target: environment.TargetQuery, Modifier: "local", Value: "1"}},
			}},
		}},
	}
	_, ts := newTestServer(t, env)

	res := get(t, ts.URL+"/remote?local=1")
	assert.Equal(t, "local", res.body)
	assert.Equal(t, "route", res.header.Get("X-Route"))

	res = get(t, ts.URL+"/remote")
	assert.Equal(t, "upstream", res.body)
	assert.Equal(t, "env", res.header.Get("X-Env"))
	assert.Equal(t, "upstream", res.header.Get("X-Shared"))
	assert.Equal(t, "proxy", res.header.Get("X-Over"))
	assert.Empty(t, res.header.Get("X-Route"), "no response was selected")
}

func TestServe_RequestLogAndMetrics(t *testing.T) {
	m := metrics.New()
	env := &environment.Environment{
		Routes: []*environment.Route{{UUID: "r1", Method: "post", Endpoint: "echo", Responses: []*environment.Response{{UUID: "resp1", Body: "{{body 'name'}}"}}}},
	}
	s, ts := newTestServer(t, env, WithMetrics(m))

	res := do(t, http.MethodPost, ts.URL+"/echo?x=1", `{"name":"ada"}`, jsonHeader())
	assert.Equal(t, "ada", res.body)

	entries := s.RequestLog().List(nil)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "POST", e.Method)
	assert.Equal(t, "/echo", e.Path)
	assert.Equal(t, "x=1", e.QueryString)
	assert.Equal(t, "r1", e.RouteUUID)
	assert.Equal(t, "resp1", e.ResponseUUID)
	assert.Equal(t, `{"name":"ada"}`, e.Body)
	assert.Equal(t, "ada", e.ResponseBody)
	assert.Equal(t, http.StatusOK, e.ResponseStatus)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestServe_CallbacksFire(t *testing.T) {
	hits := make(chan string, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		hits <- string(body)
	}))
	t.Cleanup(target.Close)

	env := &environment.Environment{
		Callbacks: []*environment.Callback{{UUID: "cb", URI: target.URL + "/hook", Method: "post", Body: "order {{urlParam 'id'}}"}},
		Routes: []*environment.Route{{
			Endpoint:  "orders/:id",
			Responses: []*environment.Response{{Body: "ok", Callbacks: []environment.CallbackInvocation{{UUID: "cb"}}}},
		}},
	}
	_, ts := newTestServer(t, env)

	assert.Equal(t, "ok", get(t, ts.URL+"/orders/5").body)
	select {
	case got := <-hits:
		assert.Equal(t, "order 5", got)
	case <-time.After(3 * time.Second):
		t.Fatal("callback not fired")
	}
}

func TestServe_CallbackCannotChangeResponseStatus(t *testing.T) {
	var hits atomic.Int64
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		hits.Add(1)
	}))
	t.Cleanup(target.Close)

	env := &environment.Environment{
		Callbacks: []*environment.Callback{{UUID: "cb", URI: target.URL, Method: "post", Body: "{{status 503}}x"}},
		Routes: []*environment.Route{{
			Endpoint:  "orders",
			Responses: []*environment.Response{{StatusCode: 201, Body: "ok", Callbacks: []environment.CallbackInvocation{{UUID: "cb"}}}},
		}},
	}
	_, ts := newTestServer(t, env)

	const n = 50
	for range n {
		res := get(t, ts.URL+"/orders")
		require.Equal(t, http.StatusCreated, res.status)
		require.Equal(t, "ok", res.body)
	}
	assert.Eventually(t, func() bool { return hits.Load() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestServe_InformationalStatusFallsBack(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{
			{Endpoint: "s100", Responses: []*environment.Response{{Body: "{{status 100}}x"}}},
			{Endpoint: "s150", Responses: []*environment.Response{{StatusCode: 202, Body: "{{status 150}}y"}}},
		},
	}
	_, ts := newTestServer(t, env)

	res := get(t, ts.URL+"/s100")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "x", res.body)

	res = get(t, ts.URL+"/s150")
	assert.Equal(t, http.StatusAccepted, res.status)
	assert.Equal(t, "y", res.body)
}

func TestServe_GlobalsSurviveUntilRestart(t *testing.T) {
	env := &environment.Environment{
		Routes: []*environment.Route{
			{Method: "post", Endpoint: "set", Responses: []*environment.Response{{Body: "{{setGlobalVar 'who' (body 'who')}}set"}}},
			{Endpoint: "who", Responses: []*environment.Response{{Body: "{{getGlobalVar 'who'}}"}}},
		},
	}
	s, ts := newTestServer(t, env)

	do(t, http.MethodPost, ts.URL+"/set", `{"who":"grace"}`, jsonHeader())
	assert.Equal(t, "grace", get(t, ts.URL+"/who").body)

	s.Restart()
	assert.Equal(t, "", get(t, ts.URL+"/who").body)
}

func TestServe_Reload(t *testing.T) {
	env := &environment.Environment{Routes: []*environment.Route{{Endpoint: "v", Responses: []*environment.Response{{Body: "one"}}}}}
	s, ts := newTestServer(t, env)
	assert.Equal(t, "one", get(t, ts.URL+"/v").body)

	next := &environment.Environment{Routes: []*environment.Route{{Endpoint: "v", Responses: []*environment.Response{{Body: "two"}}}}}
	next.Normalize()
	s.Reload(next)
	assert.Equal(t, "two", get(t, ts.URL+"/v").body)
	assert.Same(t, next, s.Environment())
}

func TestServe_WebSocket(t *testing.T) {
	env := &environment.Environment{
		Headers: []environment.Header{{Key: "X-Env", Value: "env"}},
		Routes: []*environment.Route{
			{Type: environment.RouteTypeWS, Endpoint: "live", Responses: []*environment.Response{{Body: "echo {{bodyRaw}}"}}},
			{Endpoint: "live", Responses: []*environment.Response{{Body: "plain http"}}},
		},
	}
	s, ts := newTestServer(t, env)

	c, resp, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/live", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.Equal(t, "env", resp.Header.Get("X-Env"))
	_ = resp.Body.Close()

	require.NoError(t, c.WriteMessage(gws.TextMessage, []byte("hi")))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "echo hi", string(data))

	assert.Equal(t, "plain http", get(t, ts.URL+"/live").body, "websocket routes ignore plain requests")
	assert.Eventually(t, func() bool {
		return len(s.RequestLog().List(&requestlog.Filter{Protocol: requestlog.ProtocolWebSocket})) >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestStartStop(t *testing.T) {
	env := &environment.Environment{
		Hostname: "127.0.0.1",
		Port:     0,
		Routes:   []*environment.Route{{Endpoint: "up", Responses: []*environment.Response{{Body: "yes"}}}},
	}
	s := New(env)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Close() })

	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
	assert.Equal(t, "yes", get(t, "http://"+s.Addr()+"/up").body)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.Empty(t, s.Addr())
	assert.Zero(t, s.Uptime())
}

func TestDedupSlashes(t *testing.T) {
	assert.Equal(t, "/a/b/", dedupSlashes("//a///b//"))
	assert.Equal(t, "/a", dedupSlashes("/a"))
}

func TestValidStatus(t *testing.T) {
	assert.Equal(t, 200, validStatus(0))
	assert.Equal(t, 500, validStatus(42))
	assert.Equal(t, 204, validStatus(204))
}

func TestResponseStatus(t *testing.T) {
	assert.Equal(t, 404, responseStatus(&template.ResponseState{Status: 404}, 200))
	assert.Equal(t, 201, responseStatus(&template.ResponseState{Status: 103}, 201))
	assert.Equal(t, 200, responseStatus(&template.ResponseState{Status: 100}, 100))
	assert.Equal(t, 200, responseStatus(&template.ResponseState{}, 0))
}
