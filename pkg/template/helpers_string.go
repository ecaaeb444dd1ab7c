package template

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func registerStringHelpers(r *Registry) {
	r.RegisterFunc("concat", func(c *Call) (any, error) {
		var b strings.Builder
		for _, a := range c.Args {
			b.WriteString(ToString(a))
		}
		return b.String(), nil
	})
	r.RegisterFunc("split", func(c *Call) (any, error) {
		data, ok := c.StringArg(0)
		if !ok || data == "" {
			return "", nil
		}
		sep, _ := c.StringArg(1)
		if sep == "" {
			sep = " "
		}
		parts := strings.Split(data, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	})
	r.RegisterFunc("join", func(c *Call) (any, error) {
		arr, ok := c.Arg(0).([]any)
		if !ok {
			return c.Arg(0), nil
		}
		sep, ok := c.StringArg(1)
		if !ok {
			sep = ", "
		}
		parts := make([]string, len(arr))
		for i, v := range arr {
			parts[i] = ToString(v)
		}
		return strings.Join(parts, sep), nil
	})
	r.RegisterFunc("slice", func(c *Call) (any, error) {
		arr, ok := c.Arg(0).([]any)
		if !ok {
			return "", nil
		}
		from, _ := ToInt(c.Arg(1))
		to := len(arr)
		if n, ok := c.Arg(2).(float64); ok {
			to = int(n)
		}
		lo, hi := sliceBounds(len(arr), from, to)
		return append([]any(nil), arr[lo:hi]...), nil
	})
	r.RegisterFunc("indexOf", func(c *Call) (any, error) {
		data := []rune(scalarString(c.Arg(0)))
		search := []rune(scalarString(c.Arg(1)))
		pos := 0
		if n, ok := ToInt(c.Arg(2)); ok && n > 0 {
			pos = n
		}
		if pos > len(data) {
			pos = len(data)
		}
		idx := strings.Index(string(data[pos:]), string(search))
		if idx < 0 {
			return float64(-1), nil
		}
		return float64(pos + utf8.RuneCountInString(string(data[pos:])[:idx])), nil
	})
	r.RegisterFunc("includes", func(c *Call) (any, error) {
		return strings.Contains(scalarString(c.Arg(0)), scalarString(c.Arg(1))), nil
	})
	r.RegisterFunc("substr", func(c *Call) (any, error) {
		data := []rune(scalarString(c.Arg(0)))
		from, _ := ToInt(c.Arg(1))
		if from < 0 {
			from += len(data)
			if from < 0 {
				from = 0
			}
		}
		if from > len(data) {
			from = len(data)
		}
		end := len(data)
		if n, ok := ToInt(c.Arg(2)); ok {
			if n < 0 {
				n = 0
			}
			if from+n < end {
				end = from + n
			}
		}
		return string(data[from:end]), nil
	})
	r.RegisterFunc("lowercase", func(c *Call) (any, error) {
		return strings.ToLower(ToString(c.Arg(0))), nil
	})
	r.RegisterFunc("uppercase", func(c *Call) (any, error) {
		return strings.ToUpper(ToString(c.Arg(0))), nil
	})
	r.RegisterFunc("capitalize", func(c *Call) (any, error) {
		s := ToString(c.Arg(0))
		first, size := utf8.DecodeRuneInString(s)
		if size == 0 {
			return "", nil
		}
		return cases.Upper(language.Und).String(string(first)) + s[size:], nil
	})
	r.RegisterFunc("titleCase", func(c *Call) (any, error) {
		return cases.Title(language.Und).String(ToString(c.Arg(0))), nil
	})
	r.RegisterFunc("padStart", padHelper(true))
	r.RegisterFunc("padEnd", padHelper(false))
	r.RegisterFunc("newline", func(*Call) (any, error) {
		return "\n", nil
	})
	r.RegisterFunc("len", func(c *Call) (any, error) {
		switch t := c.Arg(0).(type) {
		case []any:
			return float64(len(t)), nil
		case string:
			return float64(utf8.RuneCountInString(t)), nil
		case SafeString:
			return float64(utf8.RuneCountInString(string(t))), nil
		}
		return float64(0), nil
	})
	r.RegisterFunc("stringify", func(c *Call) (any, error) {
		v := c.Arg(0)
		switch v.(type) {
		case []any, map[string]any:
			b, err := json.MarshalIndent(normalizeJSON(v), "", "  ")
			if err != nil {
				return "", nil
			}
			return SafeString(b), nil
		}
		return v, nil
	})
	r.RegisterFunc("jsonParse", func(c *Call) (any, error) {
		var v any
		if err := json.Unmarshal([]byte(ToString(c.Arg(0))), &v); err != nil {
			return Undefined, nil
		}
		return v, nil
	})
	r.RegisterFunc("reverse", func(c *Call) (any, error) {
		switch t := c.Arg(0).(type) {
		case []any:
			out := make([]any, len(t))
			for i, v := range t {
				out[len(t)-1-i] = v
			}
			return out, nil
		case string, SafeString:
			rs := []rune(ToString(t))
			for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
				rs[i], rs[j] = rs[j], rs[i]
			}
			return string(rs), nil
		}
		return "", nil
	})
}

// scalarString stringifies strings and numbers; containers and absent
// values become "".
func scalarString(v any) string {
	switch v.(type) {
	case []any, map[string]any, nil, undefined:
		return ""
	}
	return ToString(v)
}

// sliceBounds resolves negative and out of range indexes like
// Array.prototype.slice.
func sliceBounds(n, from, to int) (int, int) {
	clamp := func(i int) int {
		if i < 0 {
			i += n
		}
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
		return i
	}
	lo, hi := clamp(from), clamp(to)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func padHelper(start bool) HelperFunc {
	return func(c *Call) (any, error) {
		s := ToString(c.Arg(0))
		width, _ := ToInt(c.Arg(1))
		pad, ok := c.StringArg(2)
		if !ok {
			pad = " "
		}
		missing := width - utf8.RuneCountInString(s)
		if missing <= 0 || pad == "" {
			return s, nil
		}
		fill := []rune(strings.Repeat(pad, missing/utf8.RuneCountInString(pad)+1))[:missing]
		if start {
			return string(fill) + s, nil
		}
		return s + string(fill), nil
	}
}
