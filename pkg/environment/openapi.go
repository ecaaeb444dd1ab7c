package environment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
)

// ErrImport is returned when an OpenAPI document cannot be converted.
var ErrImport = errors.New("openapi import failed")

var openAPIParam = regexp.MustCompile(`\{([^}]+)\}`)

// operationOrder keeps generated routes stable across imports.
var operationOrder = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "TRACE"}

// ImportOpenAPI converts an OpenAPI 3 document (JSON or YAML) into an
// environment: one route per path and operation, one response per
// documented status. Example payloads become bodies and the first 2xx
// response is the default.
func ImportOpenAPI(data []byte) (*Environment, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImport, err)
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, fmt.Errorf("%w: document has no paths", ErrImport)
	}

	env := &Environment{
		UUID:           uuid.NewString(),
		Name:           "Imported API",
		Port:           3000,
		EndpointPrefix: serverBasePath(doc),
		CORS:           true,
		Headers:        []Header{{Key: "Content-Type", Value: "application/json"}},
	}
	if doc.Info != nil && doc.Info.Title != "" {
		env.Name = doc.Info.Title
	}

	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	for _, p := range keys {
		item := paths[p]
		ops := item.Operations()
		for _, method := range operationOrder {
			op, ok := ops[method]
			if !ok || op == nil {
				continue
			}
			env.Routes = append(env.Routes, operationRoute(p, method, op))
		}
	}

	env.Normalize()
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImport, err)
	}
	return env, nil
}

func operationRoute(path, method string, op *openapi3.Operation) *Route {
	route := &Route{
		UUID:          uuid.NewString(),
		Type:          RouteTypeHTTP,
		Documentation: op.Summary,
		Method:        strings.ToLower(method),
		Endpoint:      strings.TrimPrefix(openAPIParam.ReplaceAllString(path, ":$1"), "/"),
	}

	var statuses []string
	if op.Responses != nil {
		for code := range op.Responses.Map() {
			statuses = append(statuses, code)
		}
	}
	sort.Strings(statuses)

	defaultSet := false
	for _, code := range statuses {
		ref := op.Responses.Map()[code]
		if ref == nil || ref.Value == nil {
			continue
		}
		status := parseStatus(code)
		resp := &Response{
			UUID:       uuid.NewString(),
			StatusCode: status,
			BodyType:   BodyInline,
		}
		if ref.Value.Description != nil {
			resp.Label = *ref.Value.Description
		}
		contentType, body := exampleBody(ref.Value.Content)
		if contentType != "" {
			resp.Headers = append(resp.Headers, Header{Key: "Content-Type", Value: contentType})
		}
		resp.Body = body
		if !defaultSet && status >= 200 && status < 300 {
			resp.Default = true
			defaultSet = true
		}
		route.Responses = append(route.Responses, resp)
	}

	if len(route.Responses) == 0 {
		route.Responses = []*Response{{UUID: uuid.NewString(), StatusCode: 200, Body: "{}", Default: true}}
	}
	return route
}

// parseStatus maps "404" to 404 and ranges or "default" to a
// representative code.
func parseStatus(code string) int {
	if n, err := strconv.Atoi(code); err == nil {
		return n
	}
	if len(code) == 3 && strings.HasSuffix(strings.ToUpper(code), "XX") && code[0] >= '1' && code[0] <= '5' {
		return int(code[0]-'0') * 100
	}
	return 200
}

// exampleBody picks the JSON media type when present and returns its
// example: media example, first named example, then schema example.
func exampleBody(content openapi3.Content) (string, string) {
	if len(content) == 0 {
		return "", ""
	}
	contentType := ""
	for ct := range content {
		if strings.Contains(ct, "json") {
			contentType = ct
			break
		}
	}
	if contentType == "" {
		types := make([]string, 0, len(content))
		for ct := range content {
			types = append(types, ct)
		}
		sort.Strings(types)
		contentType = types[0]
	}

	media := content[contentType]
	if media == nil {
		return contentType, ""
	}
	var example any
	switch {
	case media.Example != nil:
		example = media.Example
	case len(media.Examples) > 0:
		names := make([]string, 0, len(media.Examples))
		for n := range media.Examples {
			names = append(names, n)
		}
		sort.Strings(names)
		if ex := media.Examples[names[0]]; ex != nil && ex.Value != nil {
			example = ex.Value.Value
		}
	case media.Schema != nil && media.Schema.Value != nil && media.Schema.Value.Example != nil:
		example = media.Schema.Value.Example
	}
	if example == nil {
		return contentType, ""
	}
	if s, ok := example.(string); ok && !strings.Contains(contentType, "json") {
		return contentType, s
	}
	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return contentType, ""
	}
	return contentType, string(data)
}

// serverBasePath returns the path component of the first server URL.
func serverBasePath(doc *openapi3.T) string {
	if len(doc.Servers) == 0 || doc.Servers[0] == nil {
		return ""
	}
	u, err := url.Parse(doc.Servers[0].URL)
	if err != nil {
		return ""
	}
	return strings.Trim(u.Path, "/")
}
