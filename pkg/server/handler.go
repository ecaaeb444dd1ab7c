package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mockenv/mockenv/pkg/content"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/httputil"
	"github.com/mockenv/mockenv/pkg/metrics"
	"github.com/mockenv/mockenv/pkg/proxy"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/requestlog"
	"github.com/mockenv/mockenv/pkg/websocket"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (10MB).
const MaxRequestBodySize = 10 << 20

// corsHeaders answer preflight requests when the environment enables
// CORS. Environment headers override them.
var corsHeaders = []environment.Header{
	{Key: "Access-Control-Allow-Origin", Value: "*"},
	{Key: "Access-Control-Allow-Methods", Value: "GET,POST,PUT,PATCH,DELETE,HEAD,OPTIONS"},
	{Key: "Access-Control-Allow-Headers", Value: "Content-Type, Origin, Accept, Authorization, Content-Length, X-Requested-With"},
}

// exchange carries one request through the pipeline.
type exchange struct {
	w     *responseWriter
	r     *http.Request
	st    *state
	req   *request.Request
	body  []byte
	start time.Time

	envHeaders []environment.Header

	routeUUID    string
	responseUUID string
	proxied      bool
	err          string
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.URL.Path = dedupSlashes(r.URL.Path)
	if r.URL.RawPath != "" {
		r.URL.RawPath = dedupSlashes(r.URL.RawPath)
	}

	if s.admin && isAdminPath(r.URL.Path) {
		s.serveAdmin(w, r)
		return
	}

	st := s.state.Load()
	if !sleep(r.Context(), time.Duration(st.env.Latency)*time.Millisecond) {
		return
	}

	x := &exchange{w: newResponseWriter(w), r: r, st: st, start: start}
	defer s.finish(x)

	// MaxBytesReader returns an error when the limit is exceeded, unlike
	// LimitReader which silently truncates.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.log.Warn("request body too large", "path", r.URL.Path, "limit", MaxRequestBodySize)
			x.err = "request body too large"
			httputil.WriteJSON(x.w, http.StatusRequestEntityTooLarge, map[string]string{
				"error":   "body_too_large",
				"message": "Request body exceeds maximum allowed size",
			})
			return
		}
		s.log.Warn("failed to read request body", "path", r.URL.Path, "error", err)
	}
	x.body = body
	x.req = request.FromHTTP(r, body)

	envCtx := st.run.TemplateContext(x.req, nil)
	x.envHeaders = content.RenderHeaders(s.engine, st.env.Headers, envCtx, s.headerError)

	if websocket.IsWebSocketRequest(r) && s.serveWebSocket(w, x) {
		x.w = nil
		return
	}

	content.ApplyHeaders(x.w.Header(), x.envHeaders)

	for _, cr := range st.routes {
		if cr.route.Type == environment.RouteTypeWS {
			continue
		}
		m, ok := cr.match(r.Method, r.URL.Path)
		if !ok {
			continue
		}
		x.req.Route = cr.route.Endpoint
		x.req.Params = m.params
		sel, err := s.resolver.Select(cr.route, x.req, st.run)
		if err != nil {
			// disabled route or FALLBACK without a matching rule
			continue
		}
		s.metrics.Selection(string(sel.Outcome))
		x.routeUUID = cr.route.UUID
		x.responseUUID = sel.Response.UUID
		s.serveRoute(x, m, sel.Response)
		return
	}
	x.req.Route = ""
	x.req.Params = map[string]string{}

	if st.env.CORS && r.Method == http.MethodOptions {
		headers := append(append([]environment.Header(nil), corsHeaders...), x.envHeaders...)
		content.ApplyHeaders(x.w.Header(), headers)
		x.w.WriteHeader(http.StatusOK)
		return
	}

	if proxy.Enabled(st.env) {
		x.proxied = true
		result := s.proxy.Forward(x.w, r, body, st.env, envCtx)
		if result.Err != nil {
			x.err = result.Err.Error()
		}
		return
	}

	httputil.WriteText(x.w, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
}

// serveWebSocket attaches an upgrade request to the first WebSocket
// route matching it. It reports false when no route does.
func (s *Server) serveWebSocket(w http.ResponseWriter, x *exchange) bool {
	for _, cr := range x.st.routes {
		if cr.route.Type != environment.RouteTypeWS {
			continue
		}
		m, ok := cr.match(x.r.Method, x.r.URL.Path)
		if !ok {
			continue
		}
		x.req.Route = cr.route.Endpoint
		x.req.Params = m.params
		content.ApplyHeaders(w.Header(), x.envHeaders)
		if err := s.hub.Serve(w, x.r, cr.route, x.req, x.st.run); err != nil {
			s.log.Warn("websocket upgrade failed", "route", cr.route.Endpoint, "error", err)
		}
		return true
	}
	return false
}

// finish records the exchange in the request log and metrics.
func (s *Server) finish(x *exchange) {
	if x.w == nil {
		return
	}
	status := x.w.Status()
	route := x.routeUUID
	if route == "" {
		route = metrics.Unmatched
	}
	d := time.Since(x.start)
	s.metrics.ObserveRequest(x.r.Method, route, status, d)

	entry := &requestlog.Entry{
		Timestamp:      x.start,
		Protocol:       requestlog.ProtocolHTTP,
		Method:         x.r.Method,
		Path:           x.r.URL.Path,
		QueryString:    x.r.URL.RawQuery,
		Headers:        x.r.Header.Clone(),
		Body:           requestlog.Truncate(string(x.body)),
		BodySize:       len(x.body),
		RemoteAddr:     x.r.RemoteAddr,
		RouteUUID:      x.routeUUID,
		ResponseUUID:   x.responseUUID,
		Proxied:        x.proxied,
		ResponseStatus: status,
		ResponseBody:   x.w.Captured(),
		DurationMs:     int(d.Milliseconds()),
		Error:          x.err,
	}
	if x.req != nil {
		entry.RemoteAddr = x.req.IP
	}
	s.Log(entry)
	s.log.Debug("request served", "method", x.r.Method, "path", x.r.URL.Path, "status", status, "route", x.routeUUID, "duration", d)
}

func (s *Server) headerError(key string, err error) {
	s.metrics.TemplateError("header")
	s.log.Warn("header template failed", "header", key, "error", err)
}

func isAdminPath(path string) bool {
	return path == AdminPrefix || strings.HasPrefix(path, AdminPrefix+"/")
}

// sleep waits d or until ctx ends. It reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// responseWriter records the status and the start of the body for the
// request log.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	captured    []byte
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if room := requestlog.MaxBodySize - len(rw.captured); room > 0 {
		rw.captured = append(rw.captured, b[:min(room, len(b))]...)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Status returns the status sent, 200 when nothing was written.
func (rw *responseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// Captured returns the start of the body sent.
func (rw *responseWriter) Captured() string {
	return string(rw.captured)
}
