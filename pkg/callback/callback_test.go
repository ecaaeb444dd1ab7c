package callback

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockenv/mockenv/pkg/content"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/metrics"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/runstate"
	"github.com/mockenv/mockenv/pkg/template"
)

type captured struct {
	method      string
	path        string
	contentType string
	header      http.Header
	body        string
	at          time.Time
}

type sink struct {
	mu    sync.Mutex
	calls []captured
}

func (s *sink) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.calls = append(s.calls, captured{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			header:      r.Header.Clone(),
			body:        string(body),
			at:          time.Now(),
		})
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *sink) all() []captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]captured(nil), s.calls...)
}

func setup(t *testing.T, env *environment.Environment, dir string) (*Dispatcher, *template.Context, *sink, string) {
	t.Helper()
	s := &sink{}
	ts := httptest.NewServer(s.handler())
	t.Cleanup(ts.Close)

	run := runstate.New(env, nil, runstate.Options{Seed: 3})
	hr := httptest.NewRequest(http.MethodPost, "/orders/42", nil)
	hr.Header.Set("Content-Type", "application/json")
	req := request.FromHTTP(hr, []byte(`{"id":42}`))
	req.Params["id"] = "42"
	tctx := run.TemplateContext(req, nil)

	d := New(content.NewRenderer(run.Engine, dir), Options{Metrics: metrics.New()})
	t.Cleanup(d.Close)
	return d, tctx, s, ts.URL
}

func TestDispatch_InlineBody(t *testing.T) {
	env := &environment.Environment{}
	d, tctx, s, url := setup(t, env, "")
	env.Callbacks = []*environment.Callback{{
		UUID:    "cb1",
		Name:    "notify",
		URI:     url + "/hook/{{urlParam 'id'}}",
		Method:  "post",
		Headers: []environment.Header{{Key: "X-Order", Value: "{{urlParam 'id'}}"}},
		Body:    `{"order":{{body 'id'}}}`,
	}}

	d.Dispatch(env, &environment.Response{Callbacks: []environment.CallbackInvocation{{UUID: "cb1"}}}, tctx)
	d.Wait()

	calls := s.all()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "/hook/42", calls[0].path)
	assert.Equal(t, "42", calls[0].header.Get("X-Order"))
	assert.Equal(t, `{"order":42}`, calls[0].body)
}

func TestDispatch_GetSendsNoBody(t *testing.T) {
	env := &environment.Environment{}
	d, tctx, s, url := setup(t, env, "")
	env.Callbacks = []*environment.Callback{{UUID: "cb", URI: url, Method: "get", Body: "ignored"}}

	d.Dispatch(env, &environment.Response{Callbacks: []environment.CallbackInvocation{{UUID: "cb"}}}, tctx)
	d.Wait()

	calls := s.all()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].method)
	assert.Empty(t, calls[0].body)
}

func TestDispatch_DisableTemplatingFromResponse(t *testing.T) {
	env := &environment.Environment{}
	d, tctx, s, url := setup(t, env, "")
	env.Callbacks = []*environment.Callback{{UUID: "cb", URI: url, Method: "put", Body: "{{add 1 1}}"}}

	d.Dispatch(env, &environment.Response{
		DisableTemplating: true,
		Callbacks:         []environment.CallbackInvocation{{UUID: "cb"}},
	}, tctx)
	d.Wait()

	require.Len(t, s.all(), 1)
	assert.Equal(t, "{{add 1 1}}", s.all()[0].body)
}

func TestDispatch_DataBucketBody(t *testing.T) {
	env := &environment.Environment{Data: []*environment.DataBucket{{ID: "b1", Name: "items", Value: `[1,2]`}}}
	d, tctx, s, url := setup(t, env, "")
	env.Callbacks = []*environment.Callback{{
		UUID: "cb", URI: url, Method: "post",
		BodyType: environment.BodyDataBucket, DatabucketID: "b1",
	}}

	d.Dispatch(env, &environment.Response{Callbacks: []environment.CallbackInvocation{{UUID: "cb"}}}, tctx)
	d.Wait()

	require.Len(t, s.all(), 1)
	assert.Equal(t, `[1,2]`, s.all()[0].body)
}

func TestDispatch_FileBodies(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "payload.json"), []byte(`{"sum":{{add 2 3}}}`), 0o600))

	env := &environment.Environment{}
	d, tctx, s, url := setup(t, env, dir)
	env.Callbacks = []*environment.Callback{
		{UUID: "raw", URI: url + "/raw", Method: "post", BodyType: environment.BodyFile, FilePath: "payload.json", SendFileAsBody: true},
		{UUID: "form", URI: url + "/form", Method: "post", BodyType: environment.BodyFile, FilePath: "payload.json"},
	}

	d.Dispatch(env, &environment.Response{Callbacks: []environment.CallbackInvocation{{UUID: "raw"}, {UUID: "form"}}}, tctx)
	d.Wait()

	calls := s.all()
	require.Len(t, calls, 2)
	byPath := map[string]captured{}
	for _, c := range calls {
		byPath[c.path] = c
	}
	assert.Equal(t, `{"sum":5}`, byPath["/raw"].body)
	assert.Contains(t, byPath["/raw"].contentType, "application/json")
	assert.Contains(t, byPath["/form"].contentType, "multipart/form-data")
	assert.Contains(t, byPath["/form"].body, `name="file"`)
}

func TestDispatch_UnknownCallbackSkipped(t *testing.T) {
	env := &environment.Environment{}
	d, tctx, s, _ := setup(t, env, "")
	d.Dispatch(env, &environment.Response{Callbacks: []environment.CallbackInvocation{{UUID: "missing"}}}, tctx)
	d.Wait()
	assert.Empty(t, s.all())
}

func TestDispatch_Latency(t *testing.T) {
	env := &environment.Environment{}
	d, tctx, s, url := setup(t, env, "")
	env.Callbacks = []*environment.Callback{{UUID: "cb", URI: url, Method: "post"}}

	start := time.Now()
	d.Dispatch(env, &environment.Response{Callbacks: []environment.CallbackInvocation{{UUID: "cb", Latency: 50}}}, tctx)
	assert.Less(t, time.Since(start), 50*time.Millisecond, "dispatch must not block")
	d.Wait()

	require.Len(t, s.all(), 1)
	assert.GreaterOrEqual(t, s.all()[0].at.Sub(start), 50*time.Millisecond)
}

func TestClose_CancelsPending(t *testing.T) {
	env := &environment.Environment{}
	d, tctx, s, url := setup(t, env, "")
	env.Callbacks = []*environment.Callback{{UUID: "cb", URI: url, Method: "post"}}

	d.Dispatch(env, &environment.Response{Callbacks: []environment.CallbackInvocation{{UUID: "cb", Latency: 10_000}}}, tctx)
	time.Sleep(20 * time.Millisecond)
	d.Close()
	assert.Empty(t, s.all())
}

func TestDispatch_RendersAgainstDetachedResponse(t *testing.T) {
	env := &environment.Environment{}
	d, tctx, s, url := setup(t, env, "")
	env.Callbacks = []*environment.Callback{{UUID: "cb", URI: url, Method: "post", Body: "{{status 503}}sent"}}
	tctx.Response = &template.ResponseState{Status: http.StatusCreated}

	d.Dispatch(env, &environment.Response{Callbacks: []environment.CallbackInvocation{{UUID: "cb"}}}, tctx)
	d.Wait()

	calls := s.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "sent", calls[0].body)
	assert.Equal(t, http.StatusCreated, tctx.Response.Status)
}
