package template

import (
	"strconv"
	"strings"

	"github.com/mockenv/mockenv/internal/selector"
)

func registerRequestHelpers(r *Registry) {
	r.RegisterFunc("body", bodyHelper)
	r.RegisterFunc("bodyRaw", bodyRawHelper)
	r.RegisterFunc("queryParam", queryParamHelper)
	r.RegisterFunc("queryParamRaw", queryParamRawHelper)
	r.RegisterFunc("urlParam", func(c *Call) (any, error) {
		name, ok := c.StringArg(0)
		if !ok || c.Ctx.Request == nil {
			return Undefined, nil
		}
		v, ok := c.Ctx.Request.Params[name]
		if !ok {
			return Undefined, nil
		}
		return v, nil
	})
	r.RegisterFunc("header", func(c *Call) (any, error) {
		def := optString(c.Arg(1))
		name, ok := c.StringArg(0)
		if !ok {
			return def, nil
		}
		if v, ok := c.Ctx.Request.HeaderValue(name); ok && v != "" {
			return v, nil
		}
		return def, nil
	})
	r.RegisterFunc("cookie", func(c *Call) (any, error) {
		def := optString(c.Arg(1))
		name, ok := c.StringArg(0)
		if !ok || c.Ctx.Request == nil {
			return def, nil
		}
		if v := c.Ctx.Request.Cookies[name]; v != "" {
			return v, nil
		}
		return def, nil
	})
	r.RegisterFunc("baseUrl", func(c *Call) (any, error) {
		protocol := "http"
		if c.Ctx.Server.TLS {
			protocol = "https"
		}
		host := "localhost"
		if c.Ctx.Request != nil && c.Ctx.Request.Hostname != "" {
			host = c.Ctx.Request.Hostname
		}
		prefix := strings.Trim(c.Ctx.Server.Prefix, "/")
		if prefix != "" {
			prefix = "/" + prefix
		}
		return protocol + "://" + host + ":" + strconv.Itoa(c.Ctx.Server.Port) + prefix, nil
	})
	r.RegisterFunc("hostname", requestField(func(c *Call) string { return c.Ctx.Request.Hostname }))
	r.RegisterFunc("ip", requestField(func(c *Call) string { return c.Ctx.Request.IP }))
	r.RegisterFunc("method", requestField(func(c *Call) string { return c.Ctx.Request.Method }))
	r.RegisterFunc("path", requestField(func(c *Call) string { return c.Ctx.Request.Path }))
}

func requestField(get func(c *Call) string) HelperFunc {
	return func(c *Call) (any, error) {
		if c.Ctx.Request == nil {
			return "", nil
		}
		return get(c), nil
	}
}

// optString returns v when it is a string and "" otherwise.
func optString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case SafeString:
		return string(t)
	}
	return ""
}

// optPath returns a selector path argument. Non-strings mean "no path".
func optPath(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case SafeString:
		return string(t)
	case float64:
		return FormatNumber(t)
	}
	return ""
}

// stringifyResult wraps a looked-up value the way body and queryParam
// return it: containers always as JSON.
func stringifyResult(v any, stringify bool) SafeString {
	switch v.(type) {
	case []any, map[string]any:
		stringify = true
	}
	if stringify {
		return SafeString(ToJSON(v))
	}
	return SafeString(ToString(v))
}

func bodyHelper(c *Call) (any, error) {
	path := optPath(c.Arg(0))
	def := c.Arg(1)
	if _, ok := def.(string); !ok {
		def = ""
	}
	stringify, _ := c.Arg(2).(bool)

	req := c.Ctx.Request
	if path == "" {
		return SafeString(req.BodyString()), nil
	}
	if req == nil || req.Body == nil {
		if stringify {
			return SafeString(ToJSON(def)), nil
		}
		return SafeString(ToString(def)), nil
	}
	v, ok := selector.Get(req.Body, path)
	if !ok {
		v = def
	}
	return stringifyResult(v, stringify), nil
}

func bodyRawHelper(c *Call) (any, error) {
	var def any = ""
	if c.NumArgs() >= 2 {
		def = c.Arg(1)
	}
	req := c.Ctx.Request
	if req == nil {
		return def, nil
	}
	path := optPath(c.Arg(0))
	if req.Body == nil {
		// Unstructured bodies, such as plain WebSocket messages, are
		// only reachable whole.
		if path == "" && len(req.RawBody) > 0 {
			return req.BodyString(), nil
		}
		return def, nil
	}
	if path == "" {
		return req.Body, nil
	}
	if v, ok := selector.Get(req.Body, path); ok {
		return v, nil
	}
	return def, nil
}

func queryParamHelper(c *Call) (any, error) {
	path := optPath(c.Arg(0))
	def := optString(c.Arg(1))
	stringify, _ := c.Arg(2).(bool)

	req := c.Ctx.Request
	if req == nil || req.Query == nil {
		if stringify {
			return SafeString(ToJSON(def)), nil
		}
		return SafeString(def), nil
	}
	if path == "" {
		return SafeString(ToJSON(req.Query)), nil
	}
	v, ok := selector.Get(req.Query, path)
	if !ok {
		v = def
	}
	return stringifyResult(v, stringify), nil
}

func queryParamRawHelper(c *Call) (any, error) {
	var def any = ""
	if c.NumArgs() >= 2 {
		def = c.Arg(1)
	}
	req := c.Ctx.Request
	if req == nil || req.Query == nil {
		return def, nil
	}
	path := optPath(c.Arg(0))
	if path == "" {
		return req.Query, nil
	}
	if v, ok := selector.Get(req.Query, path); ok {
		return v, nil
	}
	return def, nil
}
