package environment

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// routeSpecialChars have a meaning in endpoint patterns and are escaped
// with a backslash when a literal path is stored as a route.
const routeSpecialChars = `\()*+?:{}`

// EscapeRoutePath escapes the characters of a literal request path that
// endpoint patterns would otherwise interpret.
func EscapeRoutePath(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for _, r := range path {
		if strings.ContainsRune(routeSpecialChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Transaction is a completed request/response pair, usually a proxied one.
type Transaction struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       string
}

// skippedRecordedHeaders are recomputed when the recorded route is served.
var skippedRecordedHeaders = map[string]bool{
	"content-encoding":  true,
	"transfer-encoding": true,
	"content-length":    true,
	"connection":        true,
	"date":              true,
}

// RouteFromTransaction turns tx into a single-response route. The endpoint
// is the escaped path without the leading slash and without the
// environment prefix.
func (e *Environment) RouteFromTransaction(tx Transaction) *Route {
	endpoint := strings.TrimPrefix(tx.Path, "/")
	if prefix := e.Prefix(); prefix != "" && strings.HasPrefix(endpoint, prefix) {
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, prefix), "/")
	}

	keys := make([]string, 0, len(tx.Header))
	for key := range tx.Header {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var headers []Header
	for _, key := range keys {
		k := strings.ToLower(key)
		if skippedRecordedHeaders[k] {
			continue
		}
		for _, v := range tx.Header[key] {
			headers = append(headers, Header{Key: k, Value: v})
		}
	}
	if tx.Body != "" {
		headers = append(headers, Header{Key: "content-length", Value: strconv.Itoa(len(tx.Body))})
	}

	status := tx.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &Route{
		UUID:     uuid.NewString(),
		Type:     RouteTypeHTTP,
		Method:   strings.ToLower(tx.Method),
		Endpoint: EscapeRoutePath(endpoint),
		Responses: []*Response{{
			UUID:          uuid.NewString(),
			StatusCode:    status,
			Headers:       headers,
			Body:          tx.Body,
			BodyType:      BodyInline,
			RulesOperator: OperatorOR,
			Default:       true,
			// Recorded bodies are served verbatim.
			DisableTemplating: true,
		}},
	}
}

// HasRoute reports whether an HTTP route with the same method and endpoint
// exists.
func (e *Environment) HasRoute(method, endpoint string) bool {
	for _, r := range e.Routes {
		if r.Type == RouteTypeHTTP && strings.EqualFold(r.Method, method) && r.Endpoint == endpoint {
			return true
		}
	}
	return false
}
