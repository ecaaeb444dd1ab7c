package template

import (
	"github.com/mockenv/mockenv/internal/selector"
)

// SetData operators.
const (
	DataSet    = "set"
	DataPush   = "push"
	DataDelete = "del"
	DataInc    = "inc"
	DataDec    = "dec"
	DataInvert = "invert"
	DataMerge  = "merge"
)

func registerDataHelpers(r *Registry) {
	r.RegisterFunc("data", func(c *Call) (any, error) {
		v, ok := bucketValue(c)
		if !ok {
			return Undefined, nil
		}
		switch v.(type) {
		case []any, map[string]any:
			return SafeString(ToJSON(v)), nil
		}
		return SafeString(ToString(v)), nil
	})
	r.RegisterFunc("dataRaw", func(c *Call) (any, error) {
		v, ok := bucketValue(c)
		if !ok {
			return Undefined, nil
		}
		return v, nil
	})
	r.RegisterFunc("setData", func(c *Call) (any, error) {
		if c.NumArgs() < 2 || c.Ctx.Buckets == nil {
			return Undefined, nil
		}
		ref := optPath(c.Arg(1))
		path := optPath(c.Arg(2))
		value := Unwrap(c.Arg(3))
		op := optString(c.Arg(0))
		c.Ctx.Buckets.Update(ref, c.Ctx, func(cur any) any {
			return ApplyDataOp(op, cur, path, value)
		})
		return Undefined, nil
	})
}

// bucketValue resolves data and dataRaw arguments: bucket reference then
// optional path. Scalar buckets ignore the path and a missing path
// yields "".
func bucketValue(c *Call) (any, bool) {
	if c.NumArgs() < 1 || c.Ctx.Buckets == nil {
		return nil, false
	}
	root, ok := c.Ctx.Buckets.Lookup(optPath(c.Arg(0)), c.Ctx)
	if !ok {
		return nil, false
	}
	switch root.(type) {
	case []any, map[string]any:
	default:
		return root, true
	}
	v, ok := selector.Get(root, optPath(c.Arg(1)))
	if !ok {
		return "", true
	}
	return v, true
}

// ApplyDataOp returns cur with op applied at path. Operations that do not
// fit the current value leave it unchanged. Unknown operators mean set.
func ApplyDataOp(op string, cur any, path string, value any) any {
	switch op {
	case DataPush, DataDelete, DataInc, DataDec, DataInvert, DataMerge:
	default:
		op = DataSet
	}

	update := func(fn func(old any, exists bool) (any, bool)) any {
		next, err := selector.Update(cur, path, fn)
		if err != nil {
			return cur
		}
		return next
	}

	switch op {
	case DataSet:
		return update(func(any, bool) (any, bool) { return value, true })
	case DataMerge:
		return update(func(old any, _ bool) (any, bool) {
			a, okA := old.(map[string]any)
			b, okB := value.(map[string]any)
			if !okA || !okB {
				return value, true
			}
			out := make(map[string]any, len(a)+len(b))
			for k, v := range a {
				out[k] = v
			}
			for k, v := range b {
				out[k] = v
			}
			return out, true
		})
	case DataPush:
		if path == "" {
			arr, ok := cur.([]any)
			if !ok {
				return cur
			}
			out := make([]any, len(arr), len(arr)+1)
			copy(out, arr)
			return append(out, value)
		}
		next, err := selector.Push(cur, path, value)
		if err != nil {
			return cur
		}
		return next
	case DataDelete:
		next, err := selector.Delete(cur, path)
		if err != nil {
			return cur
		}
		return next
	case DataInc, DataDec:
		step := 1.0
		if !IsMissing(value) && value != "" {
			n, ok := ToNumber(value)
			if !ok {
				return cur
			}
			if n != 0 {
				step = n
			}
		}
		if op == DataDec {
			step = -step
		}
		return update(func(old any, exists bool) (any, bool) {
			n, ok := ToNumber(old)
			if !exists || !ok {
				return nil, false
			}
			return n + step, true
		})
	case DataInvert:
		return update(func(old any, exists bool) (any, bool) {
			b, ok := old.(bool)
			if !exists || !ok {
				return nil, false
			}
			return !b, true
		})
	}
	return cur
}
