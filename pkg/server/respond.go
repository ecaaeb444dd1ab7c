package server

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mockenv/mockenv/pkg/content"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/httputil"
	"github.com/mockenv/mockenv/pkg/template"
)

// Error bodies sent in place of a response that failed to render.
const (
	routeServingError = "Error while serving the content: "
	fileServingError  = "Error while serving the file content: "
)

// serveRoute sends the selected response of a matched route.
func (s *Server) serveRoute(x *exchange, m routeMatch, resp *environment.Response) {
	if !sleep(x.r.Context(), time.Duration(resp.Latency)*time.Millisecond) {
		x.err = "client closed the connection"
		return
	}

	rstate := &template.ResponseState{Status: resp.StatusCode}
	tctx := x.st.run.TemplateContext(x.req, rstate)

	routeHeaders := content.RenderHeaders(s.engine, resp.Headers, tctx, s.headerError)
	content.ApplyHeaders(x.w.Header(), routeHeaders)
	routeContentType, _ := content.HeaderValue(routeHeaders, "Content-Type")
	contentType := routeContentType
	if contentType == "" {
		contentType, _ = content.HeaderValue(x.envHeaders, "Content-Type")
	}

	if resp.BodyType == environment.BodyFile && resp.FilePath != "" {
		s.serveFile(x, resp, tctx, rstate, routeContentType)
		return
	}

	if httputil.IsJSONContentType(contentType) {
		x.w.Header().Set("Content-Type", "application/json")
	}

	body := resp.Body
	templated := true
	if bucketID := bucketOf(m, resp); bucketID != "" {
		// bucket values were rendered when materialized
		templated = false
		if m.action != crudNone {
			if out, ok := s.crud(x, m.action, bucketID, m.params[crudParam], crudKey(m.route), tctx, rstate); ok {
				body = out
			}
		} else if v, ok := s.renderer.Bucket(content.Source{BodyType: environment.BodyDataBucket, DatabucketID: bucketID}, tctx); ok {
			body = v
		}
	}
	s.serveBody(x, resp, body, templated, tctx, rstate)
}

// crudKey is the item key of a CRUD route, set on its first response.
func crudKey(route *environment.Route) string {
	if len(route.Responses) > 0 && route.Responses[0].CrudKey != "" {
		return route.Responses[0].CrudKey
	}
	return defaultCrudKey
}

// bucketOf returns the data bucket backing the response body, if any.
// CRUD routes fall back to the route's bucket.
func bucketOf(m routeMatch, resp *environment.Response) string {
	if m.route.Type == environment.RouteTypeCRUD && m.action != crudNone {
		if resp.BodyType != "" && resp.BodyType != environment.BodyDataBucket {
			return ""
		}
		if resp.DatabucketID != "" {
			return resp.DatabucketID
		}
		return m.route.DatabucketID
	}
	if resp.BodyType == environment.BodyDataBucket {
		return resp.DatabucketID
	}
	return ""
}

// serveBody renders body when templated and sends it, firing the
// response callbacks once the content is known.
func (s *Server) serveBody(x *exchange, resp *environment.Response, body string, templated bool, tctx *template.Context, rstate *template.ResponseState) {
	if templated && !resp.DisableTemplating {
		out, err := s.engine.Render(body, tctx)
		if err != nil {
			s.metrics.TemplateError("body")
			s.log.Warn("body template failed", "route", x.routeUUID, "error", err)
			x.err = err.Error()
			httputil.WriteText(x.w, http.StatusOK, routeServingError+err.Error())
			return
		}
		body = out
	}

	x.w.WriteHeader(responseStatus(rstate, resp.StatusCode))
	_, _ = io.WriteString(x.w, body)
	s.callbacks.Dispatch(x.st.env, resp, tctx)
}

// serveFile sends a file body. Text-like files are rendered; other files
// are streamed, honoring Range requests.
func (s *Server) serveFile(x *exchange, resp *environment.Response, tctx *template.Context, rstate *template.ResponseState, routeContentType string) {
	path, err := s.renderer.ResolvePath(content.FromResponse(resp), tctx)
	if err != nil {
		s.fail(x, routeServingError, err, 0)
		return
	}

	h := x.w.Header()
	mimeType := content.MimeType(path)
	if routeContentType == "" {
		h.Set("Content-Type", mimeType)
	}
	if !resp.SendFileAsBody {
		h.Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	}

	if !resp.DisableTemplating && content.Templatable(mimeType, path) {
		data, err := os.ReadFile(path)
		if err != nil {
			s.fileFallback(x, resp, tctx, rstate, routeContentType, err)
			return
		}
		out, err := s.engine.Render(string(data), tctx)
		if err != nil {
			s.metrics.TemplateError("body")
			s.fail(x, fileServingError, err, rstate.Status)
			return
		}
		x.w.WriteHeader(responseStatus(rstate, resp.StatusCode))
		_, _ = io.WriteString(x.w, out)
		s.callbacks.Dispatch(x.st.env, resp, tctx)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.fileFallback(x, resp, tctx, rstate, routeContentType, err)
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		err = &fs.PathError{Op: "read", Path: path, Err: errors.New("is a directory")}
	}
	if err != nil {
		s.fileFallback(x, resp, tctx, rstate, routeContentType, err)
		return
	}

	defer s.callbacks.Dispatch(x.st.env, resp, tctx)
	if x.r.Header.Get("Range") != "" {
		http.ServeContent(x.w, x.r, "", info.ModTime(), f)
		return
	}
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	x.w.WriteHeader(responseStatus(rstate, resp.StatusCode))
	if _, err := io.Copy(x.w, f); err != nil {
		s.log.Warn("file copy failed", "path", path, "error", err)
	}
}

// fileFallback answers a file that cannot be read: the inline body with
// a 404 when the response asks for it, an error message otherwise.
func (s *Server) fileFallback(x *exchange, resp *environment.Response, tctx *template.Context, rstate *template.ResponseState, routeContentType string, err error) {
	if resp.FallbackTo404 {
		h := x.w.Header()
		h.Del("Content-Disposition")
		if routeContentType == "" {
			h.Del("Content-Type")
		}
		rstate.Status = http.StatusNotFound
		s.serveBody(x, resp, resp.Body, true, tctx, rstate)
		return
	}
	s.fail(x, fileServingError, err, rstate.Status)
}

// fail sends a plain text error. A zero status becomes 200.
func (s *Server) fail(x *exchange, prefix string, err error, status int) {
	s.log.Warn("route serving failed", "route", x.routeUUID, "error", err)
	x.err = err.Error()
	x.w.Header().Del("Content-Disposition")
	httputil.WriteText(x.w, validStatus(status), prefix+err.Error())
}

// responseStatus is the status to send once rendering is done.
// Informational codes cannot carry a body, so a 1xx set by a template or
// the document falls back to the configured status, then to 200.
func responseStatus(rstate *template.ResponseState, configured int) int {
	code := rstate.Status
	if isInformational(code) {
		code = configured
	}
	if isInformational(code) {
		code = http.StatusOK
	}
	return validStatus(code)
}

func isInformational(code int) bool {
	return code >= 100 && code < 200
}

// validStatus maps an unset status to 200 and an out of range one to 500.
func validStatus(code int) int {
	switch {
	case code == 0:
		return http.StatusOK
	case code < 100 || code > 999:
		return http.StatusInternalServerError
	}
	return code
}
