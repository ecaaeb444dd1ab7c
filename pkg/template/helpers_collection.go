package template

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/mockenv/mockenv/internal/matching"
	"github.com/mockenv/mockenv/internal/selector"
)

func registerCollectionHelpers(r *Registry) {
	r.RegisterFunc("array", func(c *Call) (any, error) {
		out := make([]any, len(c.Args))
		for i, a := range c.Args {
			out[i] = Unwrap(a)
		}
		return out, nil
	})
	r.RegisterFunc("oneOf", func(c *Call) (any, error) {
		list, ok := c.Arg(0).([]any)
		if !ok || len(list) == 0 {
			return Undefined, nil
		}
		return c.Faker().Element(list), nil
	})
	r.RegisterFunc("someOf", func(c *Call) (any, error) {
		list, ok := c.Arg(0).([]any)
		if !ok {
			return Undefined, nil
		}
		lo, _ := ToInt(c.Arg(1))
		hi, okHi := ToInt(c.Arg(2))
		if !okHi {
			hi = lo
		}
		n := c.Faker().IntRange(lo, hi)
		if n > len(list) {
			n = len(list)
		}
		if n < 0 {
			n = 0
		}
		picked := c.Faker().Shuffle(list)[:n]
		if asArray, _ := c.Arg(3).(bool); asArray {
			return SafeString(ToJSON(picked)), nil
		}
		return picked, nil
	})
	r.RegisterFunc("sort", func(c *Call) (any, error) {
		list, ok := c.Arg(0).([]any)
		if !ok {
			return c.Arg(0), nil
		}
		return sortedCopy(list, descending(c.Arg(1)), func(v any) any { return v }), nil
	})
	r.RegisterFunc("sortBy", func(c *Call) (any, error) {
		list, ok := c.Arg(0).([]any)
		if !ok {
			return c.Arg(0), nil
		}
		path := optPath(c.Arg(1))
		return sortedCopy(list, descending(c.Arg(2)), func(v any) any {
			got, _ := selector.Get(v, path)
			return got
		}), nil
	})
	r.RegisterFunc("filter", func(c *Call) (any, error) {
		list, ok := c.Arg(0).([]any)
		if !ok {
			return []any{}, nil
		}
		conds := c.Args[1:]
		out := []any{}
		for _, item := range list {
			if matchesAny(item, conds) {
				out = append(out, item)
			}
		}
		return out, nil
	})
	r.RegisterFunc("find", func(c *Call) (any, error) {
		list, ok := c.Arg(0).([]any)
		if !ok {
			return Undefined, nil
		}
		for _, item := range list {
			if matchesAny(item, c.Args[1:]) {
				return item, nil
			}
		}
		return Undefined, nil
	})
	r.RegisterFunc("object", func(c *Call) (any, error) {
		out := make(map[string]any, len(c.Hash))
		for k, v := range c.Hash {
			out[k] = Unwrap(v)
		}
		return out, nil
	})
	r.RegisterFunc("objectMerge", func(c *Call) (any, error) {
		out := map[string]any{}
		for _, a := range c.Args {
			if m, ok := a.(map[string]any); ok {
				for k, v := range m {
					out[k] = v
				}
			}
		}
		return out, nil
	})
	r.RegisterFunc("jsonPath", func(c *Call) (any, error) {
		data := c.Arg(0)
		if s, ok := data.(string); ok {
			data = parseJSONOr(s)
		} else if s, ok := data.(SafeString); ok {
			data = parseJSONOr(string(s))
		}
		v, ok := selector.Get(data, optPath(c.Arg(1)))
		if !ok {
			return Undefined, nil
		}
		return v, nil
	})
}

func parseJSONOr(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func descending(v any) bool {
	s, _ := v.(string)
	return strings.EqualFold(s, "desc")
}

// sortedCopy sorts numbers numerically and everything else by text.
func sortedCopy(list []any, desc bool, key func(any) any) []any {
	out := append([]any(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := key(out[i]), key(out[j])
		if desc {
			a, b = b, a
		}
		na, okA := a.(float64)
		nb, okB := b.(float64)
		if okA && okB {
			return na < nb
		}
		return ToString(a) < ToString(b)
	})
	return out
}

// matchesAny reports whether item satisfies one of conds. Object
// conditions match when every key they name is loosely equal on the item;
// other conditions compare the item itself.
func matchesAny(item any, conds []any) bool {
	if len(conds) == 0 {
		return true
	}
	for _, cond := range conds {
		cond = Unwrap(cond)
		obj, isObj := cond.(map[string]any)
		if !isObj {
			if matching.LooseEqual(item, cond) {
				return true
			}
			continue
		}
		ok := true
		for path, want := range obj {
			got, found := selector.Get(item, path)
			if !found || !matching.LooseEqual(got, want) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
