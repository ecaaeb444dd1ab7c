package mockenvtest

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockenv/mockenv/pkg/environment"
)

func call(t *testing.T, m *Server, method, path string, header map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, m.URL()+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := m.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRoutesAndAssertions(t *testing.T) {
	m := New(t)
	m.Route("GET", "/users/:id").
		WithJSON(map[string]string{"id": "{{urlParam 'id'}}"}).
		WithHeader("X-Served-By", "mockenv").
		Reply()
	url := m.Start()
	assert.Equal(t, url, m.Start())

	status, body := call(t, m, http.MethodGet, "/users/42", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"id":"42"}`, body)

	m.AssertCalled(t, "GET", "/users/{id}")
	m.AssertCalledTimes(t, "get", "/users/:id", 1)
	m.AssertNotCalled(t, "POST", "/users/42")

	requests := m.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/users/42", requests[0].Path)
}

func TestRules(t *testing.T) {
	m := New(t)
	m.Route("POST", "users").
		WithStatus(http.StatusUnauthorized).WithBody("denied").
		When(environment.TargetHeader, "Authorization", environment.OpNull, "").
		Otherwise().WithStatus(http.StatusCreated).WithBody("created").
		Reply()
	m.Start()

	status, body := call(t, m, http.MethodPost, "/users", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "denied", body)

	status, body = call(t, m, http.MethodPost, "/users", map[string]string{"Authorization": "Bearer x"})
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "created", body)
}

func TestSequentialAndReset(t *testing.T) {
	m := New(t)
	m.Route("GET", "step").WithBody("one").Otherwise().WithBody("two").Sequential().Reply()
	m.Start()

	_, first := call(t, m, http.MethodGet, "/step", nil)
	_, second := call(t, m, http.MethodGet, "/step", nil)
	assert.Equal(t, []string{"one", "two"}, []string{first, second})

	m.Reset()
	assert.Empty(t, m.Requests())
	_, again := call(t, m, http.MethodGet, "/step", nil)
	assert.Equal(t, "one", again)
}

func TestRouteAddedAfterStart(t *testing.T) {
	m := New(t)
	m.Start()
	status, _ := call(t, m, http.MethodGet, "/late", nil)
	assert.Equal(t, http.StatusNotFound, status)

	m.Route("GET", "late").WithLatency(10 * time.Millisecond).WithBody("here").Reply()
	status, body := call(t, m, http.MethodGet, "/late", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "here", body)
	assert.Len(t, m.Environment().Routes, 1)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "body.txt"), []byte("from {{method}}"), 0o644))
	doc := `name: loaded
routes:
  - endpoint: file
    responses:
      - bodyType: FILE
        filePath: body.txt
        sendFileAsBody: true
`
	path := filepath.Join(dir, "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m := Load(t, path)
	m.Start()
	_, body := call(t, m, http.MethodGet, "/file", nil)
	assert.Equal(t, "from GET", strings.TrimSpace(body))
	assert.Equal(t, "loaded", m.Environment().Name)
}

func TestStopIsIdempotent(t *testing.T) {
	m := New(t)
	assert.Empty(t, m.URL())
	assert.Nil(t, m.Server())
	m.Start()
	assert.NotNil(t, m.Server())
	m.Stop()
	m.Stop()
	assert.Empty(t, m.URL())
}

func TestMatchesPath(t *testing.T) {
	tests := []struct {
		actual, expected string
		want             bool
	}{
		{"/users/1", "/users/1", true},
		{"/users/1", "users/{id}", true},
		{"/users/1", "/users/:id", true},
		{"/users/1/posts", "/users/:id", false},
		{"/teams/1", "/users/:id", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesPath(tt.actual, tt.expected), "%s vs %s", tt.actual, tt.expected)
	}
}
