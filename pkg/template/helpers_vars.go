package template

import (
	"strings"

	"github.com/mockenv/mockenv/internal/selector"
)

func registerVarHelpers(r *Registry) {
	r.RegisterFunc("setVar", func(c *Call) (any, error) {
		name, ok := c.StringArg(0)
		if !ok || c.NumArgs() < 2 {
			return Undefined, nil
		}
		c.SetVar(name, Unwrap(c.Arg(1)))
		return Undefined, nil
	})
	r.RegisterFunc("getVar", func(c *Call) (any, error) {
		def := optDefault(c, 2, Undefined)
		name, ok := c.StringArg(0)
		if !ok {
			return def, nil
		}
		v, ok := c.LookupVar(name)
		if !ok {
			return def, nil
		}
		return pathOrDefault(v, optPath(c.Arg(1)), def), nil
	})
	r.RegisterFunc("setGlobalVar", func(c *Call) (any, error) {
		name, ok := c.StringArg(0)
		if !ok || c.NumArgs() < 2 || c.Ctx.Globals == nil {
			return Undefined, nil
		}
		c.Ctx.Globals.Set(name, Unwrap(c.Arg(1)))
		return Undefined, nil
	})
	r.RegisterFunc("getGlobalVar", func(c *Call) (any, error) {
		// A null or empty path returns the whole value.
		def := optDefault(c, 2, "")
		name, ok := c.StringArg(0)
		if !ok || c.Ctx.Globals == nil {
			return def, nil
		}
		v, ok := c.Ctx.Globals.Get(name)
		if !ok {
			return def, nil
		}
		return pathOrDefault(v, optPath(c.Arg(1)), def), nil
	})
	r.RegisterFunc("getEnvVar", func(c *Call) (any, error) {
		def := optString(c.Arg(1))
		name, ok := c.StringArg(0)
		if !ok || name == "" {
			return def, nil
		}
		prefix := c.Ctx.EnvVarsPrefix
		if !strings.HasPrefix(name, prefix) {
			name = prefix + name
		}
		if v, ok := c.Ctx.lookupEnv(name); ok {
			return v, nil
		}
		return def, nil
	})
	r.RegisterFunc("status", func(c *Call) (any, error) {
		n, ok := c.NumberArg(0)
		if !ok || n != float64(int(n)) || n < 100 || n > 999 || c.Ctx.Response == nil {
			return Undefined, nil
		}
		c.Ctx.Response.Status = int(n)
		return Undefined, nil
	})
}

// optDefault returns argument i, or fallback when it was not passed.
func optDefault(c *Call, i int, fallback any) any {
	if c.NumArgs() <= i {
		return fallback
	}
	return c.Arg(i)
}

func pathOrDefault(v any, path string, def any) any {
	if path == "" {
		return v
	}
	if got, ok := selector.Get(v, path); ok {
		return got
	}
	return def
}
