package mockenvtest

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/requestlog"
	"github.com/mockenv/mockenv/pkg/server"
)

// maxLogs is the request history kept for assertions.
const maxLogs = 1000

// Server is a mock environment served for the duration of a test.
type Server struct {
	t    testing.TB
	opts []server.Option

	mu      sync.Mutex
	env     *environment.Environment
	srv     *server.Server
	httpSrv *httptest.Server
}

// New returns a server with an empty environment. opts are passed to
// server.New; the request log keeps the last 1000 requests unless an
// option replaces it.
func New(t testing.TB, opts ...server.Option) *Server {
	t.Helper()
	m := &Server{
		t:    t,
		opts: append([]server.Option{server.WithRequestLog(requestlog.NewMemoryStore(maxLogs))}, opts...),
		env:  &environment.Environment{Name: t.Name()},
	}
	t.Cleanup(m.Stop)
	return m
}

// Load returns a server for the environment document at path. Relative
// file bodies resolve against the document's directory.
func Load(t testing.TB, path string, opts ...server.Option) *Server {
	t.Helper()
	env, err := environment.LoadFromFile(path)
	if err != nil {
		t.Fatalf("mockenvtest: %v", err)
	}
	m := New(t, append([]server.Option{server.WithBaseDir(filepath.Dir(path))}, opts...)...)
	m.env = env
	return m
}

// Environment returns the environment being built or served.
func (m *Server) Environment() *environment.Environment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.env
}

// Start serves the environment and returns its base URL. Calling it again
// returns the same URL.
func (m *Server) Start() string {
	m.t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpSrv != nil {
		return m.httpSrv.URL
	}
	env := m.prepare()
	m.srv = server.New(env, m.opts...)
	m.httpSrv = httptest.NewServer(m.srv)
	return m.httpSrv.URL
}

// prepare normalizes and validates the environment. Callers hold mu.
func (m *Server) prepare() *environment.Environment {
	m.t.Helper()
	m.env.Normalize()
	if err := m.env.Validate(); err != nil {
		m.t.Fatalf("mockenvtest: %v", err)
	}
	return m.env
}

// URL returns the base URL, empty before Start.
func (m *Server) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.httpSrv == nil {
		return ""
	}
	return m.httpSrv.URL
}

// Client returns an HTTP client for the server.
func (m *Server) Client() *http.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.httpSrv == nil {
		return http.DefaultClient
	}
	return m.httpSrv.Client()
}

// Server returns the underlying server, nil before Start.
func (m *Server) Server() *server.Server {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.srv
}

// Stop shuts the server down. It runs automatically at test cleanup.
func (m *Server) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.httpSrv != nil {
		m.httpSrv.Close()
		m.httpSrv = nil
	}
	if m.srv != nil {
		_ = m.srv.Close()
		m.srv = nil
	}
}

// Reset restarts the run and clears the request history. Routes are kept.
func (m *Server) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.srv == nil {
		return
	}
	m.srv.Restart()
	m.srv.RequestLog().Clear()
}

// addRoute appends route and serves it right away when started. A
// started server gets a new environment value; the served one is not
// modified.
func (m *Server) addRoute(route *environment.Route) {
	m.t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.srv == nil {
		m.env.Routes = append(m.env.Routes, route)
		return
	}
	next := *m.env
	next.Routes = append(slices.Clone(m.env.Routes), route)
	m.env = &next
	m.srv.Reload(m.prepare())
}

// Requests returns the served HTTP requests, newest first.
func (m *Server) Requests() []*requestlog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.srv == nil {
		return nil
	}
	return m.srv.RequestLog().List(&requestlog.Filter{Protocol: requestlog.ProtocolHTTP})
}

// AssertCalled fails t when method path was never requested. path may
// contain {param} or :param segments.
func (m *Server) AssertCalled(t testing.TB, method, path string) {
	t.Helper()
	if m.countCalls(method, path) == 0 {
		t.Errorf("expected %s %s to be called, but it was not called", method, path)
	}
}

// AssertCalledTimes fails t unless method path was requested n times.
func (m *Server) AssertCalledTimes(t testing.TB, method, path string, n int) {
	t.Helper()
	if count := m.countCalls(method, path); count != n {
		t.Errorf("expected %s %s to be called %d times, but was called %d times", method, path, n, count)
	}
}

// AssertNotCalled fails t when method path was requested.
func (m *Server) AssertNotCalled(t testing.TB, method, path string) {
	t.Helper()
	if count := m.countCalls(method, path); count > 0 {
		t.Errorf("expected %s %s to not be called, but it was called %d times", method, path, count)
	}
}

func (m *Server) countCalls(method, path string) int {
	count := 0
	for _, entry := range m.Requests() {
		if strings.EqualFold(entry.Method, method) && matchesPath(entry.Path, path) {
			count++
		}
	}
	return count
}

// matchesPath compares a request path with an expected path whose
// {param} or :param segments match any single segment.
func matchesPath(actual, expected string) bool {
	actual = strings.Trim(actual, "/")
	expected = strings.Trim(expected, "/")
	if actual == expected {
		return true
	}
	got := strings.Split(actual, "/")
	want := strings.Split(expected, "/")
	if len(got) != len(want) {
		return false
	}
	for i, seg := range want {
		if isParam(seg) {
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

func isParam(seg string) bool {
	return strings.HasPrefix(seg, ":") || (strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"))
}
