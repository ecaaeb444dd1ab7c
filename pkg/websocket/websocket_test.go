package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockenv/mockenv/pkg/content"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/requestlog"
	"github.com/mockenv/mockenv/pkg/resolver"
	"github.com/mockenv/mockenv/pkg/runstate"
)

type fixture struct {
	hub  *Hub
	log  *requestlog.MemoryStore
	url  string
	dial func(t *testing.T) *gws.Conn
}

func newFixture(t *testing.T, route *environment.Route) *fixture {
	t.Helper()
	env := &environment.Environment{Routes: []*environment.Route{route}}
	run := runstate.New(env, nil, runstate.Options{Seed: 11})
	store := requestlog.NewMemoryStore(100)
	hub := NewHub(resolver.New(nil), content.NewRenderer(run.Engine, t.TempDir()), Options{RequestLog: store})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsWebSocketRequest(r) {
			http.Error(w, "upgrade required", http.StatusBadRequest)
			return
		}
		req := request.FromHTTP(r, nil)
		if err := hub.Serve(w, r, route, req, run); err != nil {
			t.Logf("serve: %v", err)
		}
	}))
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})

	f := &fixture{hub: hub, log: store, url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"}
	f.dial = func(t *testing.T) *gws.Conn {
		t.Helper()
		c, resp, err := gws.DefaultDialer.Dial(f.url, nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
		t.Cleanup(func() { _ = c.Close() })
		return c
	}
	return f
}

func readText(t *testing.T, c *gws.Conn) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	typ, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gws.TextMessage, typ)
	return string(data)
}

func TestIsWebSocketRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.False(t, IsWebSocketRequest(r))
	r.Header.Set("Connection", "keep-alive, Upgrade")
	r.Header.Set("Upgrade", "WebSocket")
	assert.True(t, IsWebSocketRequest(r))
}

func TestStreamingInterval(t *testing.T) {
	assert.Equal(t, MinStreamingInterval, StreamingInterval(&environment.Route{StreamingInterval: 1}))
	assert.Equal(t, 250*time.Millisecond, StreamingInterval(&environment.Route{StreamingInterval: 250}))
}

func TestOneToOne_RulesOnMessageBody(t *testing.T) {
	route := &environment.Route{
		UUID:         "ws1",
		Type:         environment.RouteTypeWS,
		Endpoint:     "ws",
		ResponseMode: environment.ModeRules,
		Responses: []*environment.Response{
			{UUID: "pong", Body: `pong {{body 'id'}}`, Rules: []*environment.Rule{
				{Target: environment.TargetBody, Modifier: "type", Value: "ping", Operator: environment.OpEquals},
			}},
			{UUID: "other", Body: "unknown", Default: true},
		},
	}
	f := newFixture(t, route)
	c := f.dial(t)

	require.NoError(t, c.WriteMessage(gws.TextMessage, []byte(`{"type":"ping","id":7}`)))
	assert.Equal(t, "pong 7", readText(t, c))

	require.NoError(t, c.WriteMessage(gws.TextMessage, []byte(`{"type":"hello"}`)))
	assert.Equal(t, "unknown", readText(t, c))

	assert.Eventually(t, func() bool { return f.log.Count() == 4 }, time.Second, 10*time.Millisecond)
	entries := f.log.List(&requestlog.Filter{Protocol: requestlog.ProtocolWebSocket})
	require.NotEmpty(t, entries)
	assert.Equal(t, DirectionOutbound, entries[0].WebSocket.Direction)
}

func TestOneToOne_SequentialPerConnection(t *testing.T) {
	route := &environment.Route{
		UUID:         "ws2",
		Type:         environment.RouteTypeWS,
		Endpoint:     "ws",
		ResponseMode: environment.ModeSequential,
		Responses:    []*environment.Response{{UUID: "a", Body: "a"}, {UUID: "b", Body: "b"}},
	}
	f := newFixture(t, route)

	first := f.dial(t)
	for _, want := range []string{"a", "b", "a"} {
		require.NoError(t, first.WriteMessage(gws.TextMessage, []byte("x")))
		assert.Equal(t, want, readText(t, first))
	}

	second := f.dial(t)
	require.NoError(t, second.WriteMessage(gws.TextMessage, []byte("x")))
	assert.Equal(t, "a", readText(t, second), "each connection starts its own sequence")
}

func TestOneToOne_BinaryIgnored(t *testing.T) {
	route := &environment.Route{
		UUID: "ws3", Type: environment.RouteTypeWS, Endpoint: "ws",
		Responses: []*environment.Response{{UUID: "r", Body: "{{bodyRaw}}", Default: true}},
	}
	c := newFixture(t, route).dial(t)

	require.NoError(t, c.WriteMessage(gws.BinaryMessage, []byte{0x01, 0x02}))
	require.NoError(t, c.WriteMessage(gws.TextMessage, []byte("echo")))
	assert.Equal(t, "echo", readText(t, c))
}

func TestOneToOne_MissingFileClosesConnection(t *testing.T) {
	route := &environment.Route{
		UUID: "ws4", Type: environment.RouteTypeWS, Endpoint: "ws",
		Responses: []*environment.Response{{UUID: "r", BodyType: environment.BodyFile, FilePath: "missing.json", Default: true}},
	}
	c := newFixture(t, route).dial(t)

	require.NoError(t, c.WriteMessage(gws.TextMessage, []byte("x")))
	assert.Contains(t, readText(t, c), "Status: 500, File reading error!")

	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := c.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseInternalServerErr), "got %v", err)
}

func TestUnicast_StreamsInOrder(t *testing.T) {
	route := &environment.Route{
		UUID: "ws5", Type: environment.RouteTypeWS, Endpoint: "ws",
		ResponseMode:      environment.ModeSequential,
		StreamingMode:     environment.StreamingUnicast,
		StreamingInterval: 10,
		Responses:         []*environment.Response{{UUID: "1", Body: "one"}, {UUID: "2", Body: "two"}, {UUID: "3", Body: "three"}},
	}
	c := newFixture(t, route).dial(t)

	var got []string
	for range 4 {
		got = append(got, readText(t, c))
	}
	assert.Equal(t, []string{"one", "two", "three", "one"}, got)
}

func TestBroadcast_SharedTicker(t *testing.T) {
	route := &environment.Route{
		UUID: "ws6", Type: environment.RouteTypeWS, Endpoint: "ws",
		StreamingMode:     environment.StreamingBroadcast,
		StreamingInterval: 20,
		Responses:         []*environment.Response{{UUID: "r", Body: "tick", Default: true}},
	}
	f := newFixture(t, route)
	a := f.dial(t)
	b := f.dial(t)

	assert.Equal(t, "tick", readText(t, a))
	assert.Equal(t, "tick", readText(t, b))

	f.hub.mu.Lock()
	assert.Len(t, f.hub.broadcasters, 1)
	f.hub.mu.Unlock()

	_ = a.Close()
	_ = b.Close()
	assert.Eventually(t, func() bool {
		f.hub.mu.Lock()
		defer f.hub.mu.Unlock()
		return len(f.hub.broadcasters) == 0 && len(f.hub.conns) == 0
	}, 3*time.Second, 10*time.Millisecond, "ticker stops with the last connection")
}

func TestCloseAll(t *testing.T) {
	route := &environment.Route{
		UUID: "ws7", Type: environment.RouteTypeWS, Endpoint: "ws",
		Responses: []*environment.Response{{UUID: "r", Body: "x", Default: true}},
	}
	f := newFixture(t, route)
	c := f.dial(t)
	assert.Eventually(t, func() bool { return f.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	f.hub.CloseAll()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := c.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool { return f.hub.Count() == 0 }, 3*time.Second, 10*time.Millisecond)
}
