package template

import (
	"encoding/base64"
	"errors"
	"sort"
	"strings"
)

var errRepeatCount = errors.New("requires a numeric param")

func registerBlockHelpers(r *Registry) {
	r.RegisterFunc("if", func(c *Call) (any, error) {
		return conditional(c, truthyArg(c))
	})
	r.RegisterFunc("unless", func(c *Call) (any, error) {
		return conditional(c, !truthyArg(c))
	})
	r.RegisterFunc("each", eachHelper)
	r.RegisterFunc("with", func(c *Call) (any, error) {
		v := c.Arg(0)
		if !Truthy(v) {
			return c.Inverse(nil)
		}
		return c.Fn(&BlockOptions{This: v, ChangeContext: true, Params: []any{v}})
	})
	r.RegisterFunc("repeat", repeatHelper)
	r.RegisterFunc("switch", func(c *Call) (any, error) {
		state := &SwitchState{Value: Unwrap(c.Arg(0))}
		return c.Fn(&BlockOptions{Switch: state})
	})
	r.RegisterFunc("case", func(c *Call) (any, error) {
		sw := c.Switch()
		if sw == nil || sw.Found {
			return "", nil
		}
		for _, v := range c.Args {
			if strictEqual(Unwrap(v), sw.Value) {
				sw.Found = true
				return c.Fn(&BlockOptions{})
			}
		}
		return "", nil
	})
	r.RegisterFunc("default", func(c *Call) (any, error) {
		sw := c.Switch()
		if sw != nil && sw.Found {
			return "", nil
		}
		return c.Fn(&BlockOptions{})
	})
	r.RegisterFunc("base64", func(c *Call) (any, error) {
		content, err := blockOrArg(c)
		if err != nil {
			return nil, err
		}
		return SafeString(base64.StdEncoding.EncodeToString([]byte(content))), nil
	})
	r.RegisterFunc("base64Decode", func(c *Call) (any, error) {
		content, err := blockOrArg(c)
		if err != nil {
			return nil, err
		}
		return SafeString(decodeBase64(content)), nil
	})
}

// truthyArg is the condition of if/unless. includeZero=true makes 0 true.
func truthyArg(c *Call) bool {
	v := c.Arg(0)
	if inc, _ := c.Hash["includeZero"].(bool); inc {
		if n, ok := v.(float64); ok && n == 0 {
			return true
		}
	}
	return Truthy(v)
}

// conditional renders a block section, or picks between the second and
// third arguments when used inline.
func conditional(c *Call, cond bool) (any, error) {
	if !c.IsBlock() {
		if cond {
			return c.Arg(1), nil
		}
		return c.Arg(2), nil
	}
	if cond {
		return c.Fn(nil)
	}
	return c.Inverse(nil)
}

// blockOrArg returns the rendered block body or the first argument.
func blockOrArg(c *Call) (string, error) {
	if c.IsBlock() {
		s, err := c.Fn(&BlockOptions{})
		return string(s), err
	}
	return ToString(c.Arg(0)), nil
}

func decodeBase64(s string) string {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b)
		}
	}
	return ""
}

// eachHelper iterates arrays in order and objects by sorted key. Each
// iteration gets its own frame with @index, @key, @first and @last.
func eachHelper(c *Call) (any, error) {
	var b strings.Builder
	switch t := c.Arg(0).(type) {
	case []any:
		if len(t) == 0 {
			break
		}
		for i, item := range t {
			out, err := c.Fn(&BlockOptions{
				This:          item,
				ChangeContext: true,
				Vars: map[string]any{
					"index": float64(i),
					"key":   float64(i),
					"first": i == 0,
					"last":  i == len(t)-1,
				},
				Params: []any{item, float64(i)},
			})
			if err != nil {
				return nil, err
			}
			b.WriteString(string(out))
		}
		return SafeString(b.String()), nil
	case map[string]any:
		if len(t) == 0 {
			break
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			out, err := c.Fn(&BlockOptions{
				This:          t[k],
				ChangeContext: true,
				Vars: map[string]any{
					"index": float64(i),
					"key":   k,
					"first": i == 0,
					"last":  i == len(keys)-1,
				},
				Params: []any{t[k], k},
			})
			if err != nil {
				return nil, err
			}
			b.WriteString(string(out))
		}
		return SafeString(b.String()), nil
	}
	return c.Inverse(nil)
}

// repeatHelper renders its block count times, or a random number of times
// between two bounds. With comma=true iterations are joined by ",\n".
func repeatHelper(c *Call) (any, error) {
	if c.NumArgs() == 0 {
		return nil, errRepeatCount
	}
	count := 0
	lo, okLo := ToInt(c.Arg(0))
	if c.NumArgs() >= 2 {
		hi, okHi := ToInt(c.Arg(1))
		if okLo && okHi {
			count = c.Faker().IntRange(lo, hi)
		}
	} else if okLo {
		count = lo
	}
	comma, _ := c.Hash["comma"].(bool)

	var content string
	for i := 0; i < count; i++ {
		out, err := c.Fn(&BlockOptions{
			Vars: map[string]any{
				"index": float64(i),
				"total": float64(count),
				"first": i == 0,
				"last":  i == count-1,
			},
			Params: []any{float64(i)},
		})
		if err != nil {
			return nil, err
		}
		content += string(out)
		if comma {
			content = strings.TrimRight(content, " \t\r\n")
			switch {
			case i < count-1 && !strings.HasSuffix(content, ","):
				content += ","
			case i == count-1 && strings.HasSuffix(content, ","):
				content = content[:len(content)-1]
			}
			content += "\n"
		}
	}
	return SafeString(content), nil
}

// strictEqual compares scalars by type and value.
func strictEqual(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case int:
			return x == float64(y)
		}
	case int:
		return strictEqual(float64(x), b)
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}
