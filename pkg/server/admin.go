package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/mockenv/mockenv/internal/matching"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/httputil"
	"github.com/mockenv/mockenv/pkg/requestlog"
	"github.com/mockenv/mockenv/pkg/sse"
)

// AdminPrefix is the path prefix of the admin API. Routes under it are
// never matched against the environment.
const AdminPrefix = "/__admin"

// eventTransaction is the admin event type of a completed request.
const eventTransaction = "transaction-complete"

// maxAdminBody bounds admin request bodies.
const maxAdminBody = 10 << 20

const welcomeMessage = "Welcome to the mockenv admin API. Routes under " + AdminPrefix + " manage the running environment."

// adminRoutes builds the admin API.
func (s *Server) adminRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	p := AdminPrefix

	mux.HandleFunc("GET "+p, s.handleWelcome)
	mux.HandleFunc("GET "+p+"/events", s.handleEvents)
	mux.HandleFunc("GET "+p+"/metrics", s.handleMetrics)

	// State
	mux.HandleFunc("PURGE "+p+"/state", s.handlePurgeState)
	mux.HandleFunc("POST "+p+"/state/purge", s.handlePurgeState)

	// Request logs
	mux.HandleFunc("GET "+p+"/logs", s.handleListLogs)
	mux.HandleFunc("GET "+p+"/logs/{id}", s.handleGetLog)
	mux.HandleFunc("PURGE "+p+"/logs", s.handlePurgeLogs)
	mux.HandleFunc("POST "+p+"/logs/purge", s.handlePurgeLogs)

	// Environment variables
	mux.HandleFunc("GET "+p+"/env-vars/{key}", s.handleGetEnvVar)
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		mux.HandleFunc(m+" "+p+"/env-vars", s.handleSetEnvVar)
		mux.HandleFunc(m+" "+p+"/global-vars", s.handleSetGlobalVar)
	}

	// Global variables
	mux.HandleFunc("GET "+p+"/global-vars", s.handleListGlobalVars)
	mux.HandleFunc("GET "+p+"/global-vars/{key}", s.handleGetGlobalVar)
	mux.HandleFunc("PURGE "+p+"/global-vars", s.handlePurgeGlobalVars)
	mux.HandleFunc("POST "+p+"/global-vars/purge", s.handlePurgeGlobalVars)

	// Data buckets
	mux.HandleFunc("GET "+p+"/data-buckets", s.handleListBuckets)
	mux.HandleFunc("GET "+p+"/data-buckets/{nameOrId}", s.handleGetBucket)
	mux.HandleFunc("PURGE "+p+"/data-buckets", s.handlePurgeBuckets)
	mux.HandleFunc("POST "+p+"/data-buckets/purge", s.handlePurgeBuckets)

	// Environment
	mux.HandleFunc("GET "+p+"/environment", s.handleGetEnvironment)
	mux.HandleFunc("PUT "+p+"/environment", s.handleUpdateEnvironment)
	mux.HandleFunc("GET "+p+"/recordings", s.handleListRecordings)

	return mux
}

// serveAdmin answers admin requests with permissive CORS headers.
func (s *Server) serveAdmin(w http.ResponseWriter, r *http.Request) {
	header := w.Header()
	for _, h := range corsHeaders {
		header.Set(h.Key, h.Value)
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	s.adminMux.ServeHTTP(w, r)
}

func (s *Server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, map[string]string{"response": welcomeMessage})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		httputil.WriteNotFound(w, "Metrics are disabled")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

// handleEvents streams completed transactions, starting with the latest
// logged ones (all of them, or maxlogs).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := &requestlog.Filter{}
	if n, err := strconv.Atoi(r.URL.Query().Get("maxlogs")); err == nil && n > 0 {
		filter.Limit = n
	}
	logs := s.reqLog.List(filter)
	initial := make([]sse.Event, 0, len(logs))
	for _, entry := range slices.Backward(logs) {
		initial = append(initial, sse.Event{Type: eventTransaction, Data: entry})
	}
	if err := s.events.Stream(r.Context(), w, initial, 0); err != nil {
		s.log.Warn("event stream failed", "error", err)
	}
}

func (s *Server) handlePurgeState(w http.ResponseWriter, _ *http.Request) {
	s.Restart()
	s.reqLog.Clear()
	httputil.WriteOK(w, map[string]string{"response": "Server has been reset to its initial state"})
}

// handleListLogs pages through the request log, newest first.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := positiveInt(q.Get("page"), 1)
	limit := positiveInt(q.Get("limit"), 10)
	filter := &requestlog.Filter{
		Protocol: q.Get("protocol"),
		Method:   q.Get("method"),
		Path:     q.Get("path"),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}
	logs := s.reqLog.List(filter)
	if logs == nil {
		logs = []*requestlog.Entry{}
	}
	httputil.WriteOK(w, logs)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	entry := s.reqLog.Get(r.PathValue("id"))
	if entry == nil {
		httputil.WriteNotFound(w, "Log not found")
		return
	}
	httputil.WriteOK(w, entry)
}

func (s *Server) handlePurgeLogs(w http.ResponseWriter, _ *http.Request) {
	s.reqLog.Clear()
	httputil.WriteMessage(w, http.StatusOK, "Logs have been purged")
}

func (s *Server) handleGetEnvVar(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		httputil.WriteBadRequest(w)
		return
	}
	prefix := s.Environment().VarsPrefix()
	if !strings.HasPrefix(key, prefix) {
		key = prefix + key
	}
	value, ok := s.envLookup(key)
	if !ok {
		httputil.WriteNotFound(w, "Environment variable not found")
		return
	}
	httputil.WriteOK(w, map[string]string{"key": key, "value": value})
}

func (s *Server) handleSetEnvVar(w http.ResponseWriter, r *http.Request) {
	key, value, ok := readKeyValue(r)
	if !ok {
		httputil.WriteBadRequest(w)
		return
	}
	v := matching.Stringify(value)
	s.envVars.Store(key, v)
	httputil.WriteMessage(w, http.StatusOK, fmt.Sprintf("Environment variable '%s' has been set to '%s'", key, v))
}

func (s *Server) handleListGlobalVars(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, s.Run().Globals.Snapshot())
}

func (s *Server) handleGetGlobalVar(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, ok := s.Run().Globals.Get(key)
	if !ok {
		httputil.WriteNotFound(w, "Global variable not found")
		return
	}
	httputil.WriteOK(w, map[string]any{"key": key, "value": value})
}

func (s *Server) handleSetGlobalVar(w http.ResponseWriter, r *http.Request) {
	key, value, ok := readKeyValue(r)
	if !ok {
		httputil.WriteBadRequest(w)
		return
	}
	s.Run().Globals.Set(key, value)
	httputil.WriteMessage(w, http.StatusOK, fmt.Sprintf("Global variable '%s' has been set to '%s'", key, matching.Stringify(value)))
}

func (s *Server) handlePurgeGlobalVars(w http.ResponseWriter, _ *http.Request) {
	s.Run().Globals.Purge()
	httputil.WriteMessage(w, http.StatusOK, "Global variables have been purged")
}

// bucketSummary is the listing view of a data bucket.
type bucketSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Parsed    bool   `json:"parsed"`
	ValidJSON bool   `json:"validJson"`
}

func (s *Server) handleListBuckets(w http.ResponseWriter, _ *http.Request) {
	entries := s.Run().Buckets.Snapshot()
	out := make([]bucketSummary, 0, len(entries))
	for _, e := range entries {
		_, isText := e.Value.(string)
		out = append(out, bucketSummary{
			ID:        e.ID,
			Name:      e.Name,
			Parsed:    e.Resolved,
			ValidJSON: e.Resolved && !isText,
		})
	}
	httputil.WriteOK(w, out)
}

// handleGetBucket returns a bucket with its value, materializing it if
// no request did yet.
func (s *Server) handleGetBucket(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("nameOrId")
	run := s.Run()
	b := run.Buckets.Find(ref)
	if b == nil {
		httputil.WriteNotFound(w, "Data bucket not found")
		return
	}
	value, _ := run.Buckets.Lookup(ref, run.TemplateContext(nil, nil))
	httputil.WriteOK(w, map[string]any{
		"id":    b.ID,
		"uuid":  b.UUID,
		"name":  b.Name,
		"value": value,
	})
}

func (s *Server) handlePurgeBuckets(w http.ResponseWriter, _ *http.Request) {
	run := s.Run()
	run.Buckets.Reset()
	run.Warm()
	httputil.WriteMessage(w, http.StatusOK, "Data buckets have been reset to their initial state")
}

func (s *Server) handleGetEnvironment(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, s.Environment())
}

// handleUpdateEnvironment replaces the served environment. The listener
// keeps its address; the new document starts a new run.
func (s *Server) handleUpdateEnvironment(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAdminBody))
	if err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "Invalid environment format")
		return
	}
	env, err := environment.ParseJSON(data)
	if err != nil {
		s.log.Warn("environment update rejected", "error", err)
		httputil.WriteMessage(w, http.StatusBadRequest, "Invalid environment format")
		return
	}
	s.Reload(env)
	httputil.WriteMessage(w, http.StatusOK, "Environment updated")
}

func (s *Server) handleListRecordings(w http.ResponseWriter, _ *http.Request) {
	if s.recorder == nil {
		httputil.WriteNotFound(w, "Recording is disabled")
		return
	}
	routes := s.recorder.Routes()
	if routes == nil {
		routes = []*environment.Route{}
	}
	httputil.WriteOK(w, routes)
}

// readKeyValue decodes a {"key": ..., "value": ...} body. Both fields are
// required; the key must be a non-empty string.
func readKeyValue(r *http.Request) (string, any, bool) {
	var body struct {
		Key   *string          `json:"key"`
		Value *json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAdminBody)).Decode(&body); err != nil {
		return "", nil, false
	}
	if body.Key == nil || *body.Key == "" || body.Value == nil {
		return "", nil, false
	}
	var value any
	if err := json.Unmarshal(*body.Value, &value); err != nil {
		return "", nil, false
	}
	return *body.Key, value, true
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
