package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/mockenv/mockenv/pkg/content"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/requestlog"
	"github.com/mockenv/mockenv/pkg/template"
)

// MaxRecordedBodySize bounds the upstream body kept for recording.
const MaxRecordedBodySize = 10 << 20

// Result describes a proxied exchange.
type Result struct {
	StatusCode int
	Header     http.Header
	// Body holds the start of the upstream body (the whole body when
	// recording, up to MaxRecordedBodySize).
	Body []byte
	Err  error
}

// hopByHopHeaders are connection-scoped and never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forward sends r upstream with body as payload and writes the answer to
// w. Headers already set on w are overridden by upstream ones, then by
// the environment's proxy response headers. tctx renders the proxy
// header templates.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, body []byte, env *environment.Environment, tctx *template.Context) Result {
	ctx, cancel := context.WithTimeout(r.Context(), Timeout(env))
	defer cancel()

	target := targetURL(env, r.URL.EscapedPath(), r.URL.RawQuery)
	out, err := http.NewRequestWithContext(ctx, r.Method, target, bytes.NewReader(body))
	if err != nil {
		return p.fail(w, http.StatusBadGateway, err)
	}
	out.ContentLength = int64(len(body))
	copyHeaders(out.Header, r.Header)
	removeHopByHopHeaders(out.Header)
	// Let the transport negotiate compression so bodies reach the client
	// and the recorder decoded.
	out.Header.Del("Accept-Encoding")
	setForwardedHeaders(out.Header, r)
	for _, h := range content.RenderHeaders(p.engine, env.ProxyReqHeaders, tctx, p.headerError) {
		out.Header.Set(h.Key, h.Value)
	}

	resp, err := p.client.Do(out)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return p.fail(w, http.StatusGatewayTimeout, err)
		}
		return p.fail(w, http.StatusBadGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()

	header := w.Header()
	for key := range resp.Header {
		header.Del(key)
	}
	copyHeaders(header, resp.Header)
	removeHopByHopHeaders(header)
	if cookies := header.Values("Set-Cookie"); len(cookies) > 0 {
		header.Del("Set-Cookie")
		for _, c := range cookies {
			header.Add("Set-Cookie", content.StripDomain(content.StripSecure(c)))
		}
	}
	content.ApplyHeaders(header, content.RenderHeaders(p.engine, env.ProxyResHeaders, tctx, p.headerError))

	w.WriteHeader(resp.StatusCode)

	limit := int64(requestlog.MaxBodySize)
	if p.recorder != nil && env.RecordRoutes {
		limit = MaxRecordedBodySize
	}
	capture := &limitedBuffer{limit: limit}
	if _, err := io.Copy(w, io.TeeReader(resp.Body, capture)); err != nil {
		p.log.Warn("copying upstream body failed", "url", target, "error", err)
	}

	p.metrics.ProxyRequest(resp.StatusCode)
	p.log.Debug("proxied", "method", r.Method, "url", target, "status", resp.StatusCode)

	result := Result{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: capture.Bytes()}
	if p.recorder != nil && env.RecordRoutes && !capture.truncated {
		p.recorder.Record(env, environment.Transaction{
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       string(capture.Bytes()),
		})
	}
	return result
}

func (p *Proxy) fail(w http.ResponseWriter, status int, err error) Result {
	p.metrics.ProxyRequest(status)
	p.log.Warn("proxy request failed", "status", status, "error", err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "Error while proxying the request: %s", err)
	return Result{StatusCode: status, Err: err}
}

func (p *Proxy) headerError(key string, err error) {
	p.log.Warn("proxy header template failed", "header", key, "error", err)
}

// copyHeaders copies headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// removeHopByHopHeaders removes headers that should not be forwarded,
// including the ones listed in Connection.
func removeHopByHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}

func setForwardedHeaders(h http.Header, r *http.Request) {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	h.Set("X-Forwarded-Host", r.Host)
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	h.Set("X-Forwarded-Proto", proto)
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(b.buf.Len())
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
