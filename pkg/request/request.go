// Package request holds the parsed view of an inbound call that rules,
// templates and callbacks work from.
//
// The transport layer builds a Request once per HTTP call (or once per
// WebSocket message) and every consumer reads it without further I/O.
package request

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// Request is an inbound call with its body already read and parsed.
type Request struct {
	Method string
	// Path is the decoded URL path.
	Path string
	// OriginalURL is the request URI as received (escaped path and query).
	OriginalURL string
	// Route is the endpoint pattern that matched, empty when none did.
	Route  string
	Params map[string]string

	RawQuery string
	Query    map[string]any

	Header  http.Header
	Cookies map[string]string

	ContentType string
	RawBody     []byte
	// Body is the parsed body: JSON, form and multipart bodies become
	// objects, XML becomes the compact object form, everything else is nil.
	Body any

	IP       string
	Host     string
	Hostname string
	Protocol string

	ReceivedAt time.Time
}

// FromHTTP builds a Request from r and its already-read body.
func FromHTTP(r *http.Request, body []byte) *Request {
	req := &Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		OriginalURL: r.URL.RequestURI(),
		Params:      map[string]string{},
		RawQuery:    r.URL.RawQuery,
		Query:       ParseQuery(r.URL.RawQuery),
		Header:      r.Header.Clone(),
		Cookies:     map[string]string{},
		ContentType: r.Header.Get("Content-Type"),
		RawBody:     body,
		Host:        r.Host,
		Hostname:    hostname(r.Host),
		IP:          clientIP(r),
		Protocol:    "http",
		ReceivedAt:  time.Now(),
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if r.TLS != nil {
		req.Protocol = "https"
	}
	for _, c := range r.Cookies() {
		req.Cookies[c.Name] = c.Value
	}
	req.Body = ParseBody(req.ContentType, body)
	return req
}

// BodyString returns the raw body as a string.
func (r *Request) BodyString() string {
	if r == nil {
		return ""
	}
	return string(r.RawBody)
}

// WithMessage returns a copy of r whose body is msg, parsed as if it had
// been sent with r's content type, falling back to JSON detection. It is
// how WebSocket messages are turned into resolvable requests.
func (r *Request) WithMessage(msg []byte) *Request {
	cp := *r
	cp.RawBody = msg
	cp.Body = ParseBody(r.ContentType, msg)
	if cp.Body == nil {
		cp.Body = ParseBody("application/json", msg)
	}
	cp.ReceivedAt = time.Now()
	return &cp
}

// HeaderValue returns the first value of the named header, case-insensitively.
func (r *Request) HeaderValue(name string) (string, bool) {
	if r == nil || r.Header == nil {
		return "", false
	}
	vals := r.Header.Values(name)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// HeaderMap returns the headers as a JSON-compatible object keyed by
// lower-cased name.
func (r *Request) HeaderMap() map[string]any {
	out := map[string]any{}
	if r == nil {
		return out
	}
	for k, v := range r.Header {
		key := strings.ToLower(k)
		if len(v) == 1 {
			out[key] = v[0]
			continue
		}
		list := make([]any, len(v))
		for i, s := range v {
			list[i] = s
		}
		out[key] = list
	}
	return out
}

// CookieMap returns the cookies as a JSON-compatible object.
func (r *Request) CookieMap() map[string]any {
	out := map[string]any{}
	if r == nil {
		return out
	}
	for k, v := range r.Cookies {
		out[k] = v
	}
	return out
}

// ParamMap returns the route parameters as a JSON-compatible object.
func (r *Request) ParamMap() map[string]any {
	out := map[string]any{}
	if r == nil {
		return out
	}
	for k, v := range r.Params {
		out[k] = v
	}
	return out
}

// BaseURL returns protocol://host followed by prefix.
func (r *Request) BaseURL(prefix string) string {
	if r == nil {
		return ""
	}
	base := r.Protocol + "://" + r.Host
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return base + "/"
	}
	return base + "/" + prefix + "/"
}

func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return h
	}
	return r.RemoteAddr
}
