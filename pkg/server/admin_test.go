package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/metrics"
	"github.com/mockenv/mockenv/pkg/proxy"
)

func adminEnv() *environment.Environment {
	return &environment.Environment{
		EnvVarsPrefix: "APP_",
		Data:          []*environment.DataBucket{{ID: "cnt", Name: "Counter", Value: `{"n":1}`}},
		Routes: []*environment.Route{
			{Endpoint: "greet", Responses: []*environment.Response{{Body: "hello {{getEnvVar 'NAME'}} {{getGlobalVar 'g'}}"}}},
			{Method: "post", Endpoint: "bump", Responses: []*environment.Response{{Body: `{{setData 'set' 'cnt' 'n' 2}}ok`}}},
		},
	}
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out), body)
	return out
}

func TestAdmin_Welcome(t *testing.T) {
	_, ts := newTestServer(t, adminEnv())

	res := get(t, ts.URL+AdminPrefix)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, welcomeMessage, decode(t, res.body)["response"])
	assert.Equal(t, "*", res.header.Get("Access-Control-Allow-Origin"))

	res = do(t, http.MethodOptions, ts.URL+AdminPrefix+"/logs", "", nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.NotEmpty(t, res.header.Get("Access-Control-Allow-Methods"))
}

func TestAdmin_DisabledFallsThroughToRoutes(t *testing.T) {
	_, ts := newTestServer(t, adminEnv(), WithAdmin(false))
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+AdminPrefix).status)
}

func TestAdmin_EnvVars(t *testing.T) {
	vars := map[string]string{"APP_NAME": "world"}
	lookup := func(k string) (string, bool) { v, ok := vars[k]; return v, ok }
	_, ts := newTestServer(t, adminEnv(), WithEnvLookup(lookup))

	res := get(t, ts.URL+AdminPrefix+"/env-vars/NAME")
	assert.Equal(t, map[string]any{"key": "APP_NAME", "value": "world"}, decode(t, res.body))

	res = get(t, ts.URL+AdminPrefix+"/env-vars/APP_MISSING")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "Environment variable not found", decode(t, res.body)["message"])

	res = do(t, http.MethodPut, ts.URL+AdminPrefix+"/env-vars", `{"key":"APP_NAME","value":"admin"}`, jsonHeader())
	assert.Equal(t, "Environment variable 'APP_NAME' has been set to 'admin'", decode(t, res.body)["message"])
	assert.Equal(t, "hello admin ", get(t, ts.URL+"/greet").body)

	res = do(t, http.MethodPost, ts.URL+AdminPrefix+"/env-vars", `{"key":"APP_NAME"}`, jsonHeader())
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Invalid request", decode(t, res.body)["message"])
}

func TestAdmin_GlobalVars(t *testing.T) {
	_, ts := newTestServer(t, adminEnv())

	res := do(t, http.MethodPatch, ts.URL+AdminPrefix+"/global-vars", `{"key":"g","value":42}`, jsonHeader())
	assert.Equal(t, "Global variable 'g' has been set to '42'", decode(t, res.body)["message"])

	res = get(t, ts.URL+AdminPrefix+"/global-vars/g")
	assert.Equal(t, map[string]any{"key": "g", "value": 42.0}, decode(t, res.body))
	assert.Equal(t, "hello  42", get(t, ts.URL+"/greet").body)

	res = do(t, "PURGE", ts.URL+AdminPrefix+"/global-vars", "", nil)
	assert.Equal(t, "Global variables have been purged", decode(t, res.body)["message"])
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+AdminPrefix+"/global-vars/g").status)
}

func TestAdmin_DataBuckets(t *testing.T) {
	_, ts := newTestServer(t, adminEnv())

	res := get(t, ts.URL+AdminPrefix+"/data-buckets")
	var summaries []bucketSummary
	require.NoError(t, json.Unmarshal([]byte(res.body), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, bucketSummary{ID: "cnt", Name: "Counter", Parsed: true, ValidJSON: true}, summaries[0])

	do(t, http.MethodPost, ts.URL+"/bump", "", nil)
	res = get(t, ts.URL+AdminPrefix+"/data-buckets/Counter")
	assert.Equal(t, map[string]any{"n": 2.0}, decode(t, res.body)["value"])

	res = do(t, http.MethodPost, ts.URL+AdminPrefix+"/data-buckets/purge", "", nil)
	assert.Equal(t, "Data buckets have been reset to their initial state", decode(t, res.body)["message"])
	res = get(t, ts.URL+AdminPrefix+"/data-buckets/cnt")
	assert.Equal(t, map[string]any{"n": 1.0}, decode(t, res.body)["value"])

	res = get(t, ts.URL+AdminPrefix+"/data-buckets/nope")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "Data bucket not found", decode(t, res.body)["message"])
}

func TestAdmin_LogsAndState(t *testing.T) {
	s, ts := newTestServer(t, adminEnv())
	for range 3 {
		get(t, ts.URL+"/greet")
	}
	get(t, ts.URL+"/missing")

	res := get(t, ts.URL+AdminPrefix+"/logs?limit=2")
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.body), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "/missing", entries[0]["path"], "newest first")

	res = get(t, ts.URL+AdminPrefix+"/logs?limit=2&page=2")
	require.NoError(t, json.Unmarshal([]byte(res.body), &entries))
	assert.Len(t, entries, 2)

	id := s.RequestLog().List(nil)[0].ID
	assert.Equal(t, http.StatusOK, get(t, ts.URL+AdminPrefix+"/logs/"+id).status)
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+AdminPrefix+"/logs/nope").status)

	s.Run().Globals.Set("g", "x")
	res = do(t, "PURGE", ts.URL+AdminPrefix+"/state", "", nil)
	assert.Equal(t, "Server has been reset to its initial state", decode(t, res.body)["response"])
	assert.Zero(t, s.RequestLog().Count())
	_, ok := s.Run().Globals.Get("g")
	assert.False(t, ok)

	get(t, ts.URL+"/greet")
	res = do(t, http.MethodPost, ts.URL+AdminPrefix+"/logs/purge", "", nil)
	assert.Equal(t, "Logs have been purged", decode(t, res.body)["message"])
	assert.Zero(t, s.RequestLog().Count())
}

func TestAdmin_UpdateEnvironment(t *testing.T) {
	s, ts := newTestServer(t, adminEnv())

	next := &environment.Environment{
		Name:   "next",
		Routes: []*environment.Route{{Endpoint: "greet", Responses: []*environment.Response{{Body: "replaced"}}}},
	}
	data, err := environment.ToJSON(next)
	require.NoError(t, err)

	res := do(t, http.MethodPut, ts.URL+AdminPrefix+"/environment", string(data), jsonHeader())
	assert.Equal(t, "Environment updated", decode(t, res.body)["message"])
	assert.Equal(t, "replaced", get(t, ts.URL+"/greet").body)
	assert.Equal(t, "next", s.Environment().Name)

	res = get(t, ts.URL+AdminPrefix+"/environment")
	assert.Equal(t, "next", decode(t, res.body)["name"])

	res = do(t, http.MethodPut, ts.URL+AdminPrefix+"/environment", `{"routes":`, jsonHeader())
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Invalid environment format", decode(t, res.body)["message"])
}

func TestAdmin_MetricsAndRecordings(t *testing.T) {
	_, ts := newTestServer(t, adminEnv())
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+AdminPrefix+"/metrics").status)
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+AdminPrefix+"/recordings").status)

	_, ts = newTestServer(t, adminEnv(), WithMetrics(metrics.New()), WithRecorder(proxy.NewRecorder(nil, nil)))
	get(t, ts.URL+"/greet")
	res := get(t, ts.URL+AdminPrefix+"/metrics")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "# TYPE")
	assert.Equal(t, "[]\n", get(t, ts.URL+AdminPrefix+"/recordings").body)
}

func TestAdmin_Events(t *testing.T) {
	_, ts := newTestServer(t, adminEnv())
	get(t, ts.URL+"/greet")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+AdminPrefix+"/events?maxlogs=1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	next := func() string {
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream ended")
				if strings.HasPrefix(line, "data:") {
					return line
				}
			case <-ctx.Done():
				t.Fatal("timed out waiting for event")
			}
		}
	}

	assert.Contains(t, next(), `"/greet"`)

	go func() {
		if resp, err := http.Get(ts.URL + "/live-request"); err == nil {
			_ = resp.Body.Close()
		}
	}()
	assert.Contains(t, next(), `"/live-request"`)
}
