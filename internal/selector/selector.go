// Package selector resolves paths into JSON-compatible values.
//
// Two syntaxes are supported and told apart by the first character:
//
//   - "$..." is a JSONPath expression evaluated by ojg. A single result is
//     returned unwrapped, several results as a []any.
//   - anything else is a dot-path ("user.addresses.0.city"). A backslash
//     escapes a literal dot inside a key ("headers.x\.y").
//
// Lookups never fail loudly: malformed expressions, missing keys and
// refused segments all resolve to "absent" (ok == false).
package selector

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// ErrUnsupportedPath is returned by the mutating helpers for JSONPath input.
var ErrUnsupportedPath = errors.New("selector: mutation requires a dot-path")

// ErrNotContainer is returned when a mutation walks through a scalar.
var ErrNotContainer = errors.New("selector: path crosses a non-container value")

// forbidden segments never resolve, whatever the data holds.
var forbidden = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// IsJSONPath reports whether path uses the JSONPath syntax.
func IsJSONPath(path string) bool {
	return strings.HasPrefix(path, "$")
}

// Get resolves path inside data. An empty path returns data itself.
func Get(data any, path string) (any, bool) {
	if path == "" {
		return data, true
	}
	switch data.(type) {
	case map[string]any, []any:
	default:
		return nil, false
	}
	if IsJSONPath(path) {
		return getJSONPath(data, path)
	}
	return getDotPath(data, Split(path))
}

func getJSONPath(data any, path string) (v any, ok bool) {
	// ojg evaluates filters with its own interpreter; a panic from an
	// unexpected construct is still contained here.
	defer func() {
		if recover() != nil {
			v, ok = nil, false
		}
	}()

	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, false
	}
	for _, frag := range expr {
		if key, isChild := frag.(jp.Child); isChild && forbidden[string(key)] {
			return nil, false
		}
	}

	results := expr.Get(data)
	switch len(results) {
	case 0:
		return nil, false
	case 1:
		return results[0], true
	default:
		return results, true
	}
}

func getDotPath(data any, segments []string) (any, bool) {
	cur := data
	for _, seg := range segments {
		if forbidden[seg] {
			return nil, false
		}
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Split breaks a dot-path into its segments, honoring "\." escapes.
func Split(path string) []string {
	if !strings.Contains(path, `\.`) {
		return strings.Split(path, ".")
	}
	var (
		segments []string
		b        strings.Builder
	)
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '\\' && i+1 < len(path) && path[i+1] == '.' {
			b.WriteByte('.')
			i++
			continue
		}
		if c == '.' {
			segments = append(segments, b.String())
			b.Reset()
			continue
		}
		b.WriteByte(c)
	}
	return append(segments, b.String())
}

// Set returns a copy of root where path holds value. Containers along the
// path are copied, never modified, so readers holding root are unaffected.
// Missing intermediate keys are created as objects, or arrays when the next
// segment is numeric.
func Set(root any, path string, value any) (any, error) {
	if path == "" {
		return value, nil
	}
	if IsJSONPath(path) {
		return root, ErrUnsupportedPath
	}
	return setIn(root, Split(path), func(any, bool) (any, bool) { return value, true })
}

// Update is Set with a function computing the new value from the current
// one. Returning keep == false leaves root untouched.
func Update(root any, path string, fn func(cur any, exists bool) (next any, keep bool)) (any, error) {
	if path == "" {
		next, keep := fn(root, true)
		if !keep {
			return root, nil
		}
		return next, nil
	}
	if IsJSONPath(path) {
		return root, ErrUnsupportedPath
	}
	return setIn(root, Split(path), fn)
}

func setIn(node any, segments []string, fn func(any, bool) (any, bool)) (any, error) {
	out, _, err := assign(node, segments, fn)
	return out, err
}

// assign reports changed == false when fn declined to write, in which case
// node is returned as is and no containers are created along the way.
func assign(node any, segments []string, fn func(any, bool) (any, bool)) (any, bool, error) {
	seg := segments[0]
	if forbidden[seg] {
		return node, false, ErrUnsupportedPath
	}
	rest := segments[1:]

	switch n := node.(type) {
	case map[string]any:
		cur, exists := n[seg]
		next, changed, err := child(cur, exists, rest, fn)
		if err != nil || !changed {
			return node, false, err
		}
		out := make(map[string]any, len(n)+1)
		for k, v := range n {
			out[k] = v
		}
		out[seg] = next
		return out, true, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 {
			return node, false, ErrNotContainer
		}
		var cur any
		exists := idx < len(n)
		if exists {
			cur = n[idx]
		}
		next, changed, err := child(cur, exists, rest, fn)
		if err != nil || !changed {
			return node, false, err
		}
		size := len(n)
		if idx >= size {
			size = idx + 1
		}
		out := make([]any, size)
		copy(out, n)
		out[idx] = next
		return out, true, nil
	case nil:
		if _, err := strconv.Atoi(seg); err == nil {
			return assign([]any{}, segments, fn)
		}
		return assign(map[string]any{}, segments, fn)
	default:
		return node, false, ErrNotContainer
	}
}

func child(cur any, exists bool, rest []string, fn func(any, bool) (any, bool)) (any, bool, error) {
	if len(rest) == 0 {
		next, keep := fn(cur, exists)
		return next, keep, nil
	}
	return assign(cur, rest, fn)
}

// Delete returns a copy of root without the value at path. A missing path
// returns root unchanged.
func Delete(root any, path string) (any, error) {
	if path == "" {
		return nil, nil
	}
	if IsJSONPath(path) {
		return root, ErrUnsupportedPath
	}
	segments := Split(path)
	parentPath, key := segments[:len(segments)-1], segments[len(segments)-1]

	parent, ok := getDotPath(root, parentPath)
	if !ok {
		return root, nil
	}
	var replacement any
	switch p := parent.(type) {
	case map[string]any:
		if _, ok := p[key]; !ok {
			return root, nil
		}
		out := make(map[string]any, len(p))
		for k, v := range p {
			if k != key {
				out[k] = v
			}
		}
		replacement = out
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(p) {
			return root, nil
		}
		out := make([]any, 0, len(p)-1)
		out = append(out, p[:idx]...)
		out = append(out, p[idx+1:]...)
		replacement = out
	default:
		return root, nil
	}

	if len(parentPath) == 0 {
		return replacement, nil
	}
	return setIn(root, parentPath, func(any, bool) (any, bool) { return replacement, true })
}

// Push returns a copy of root with value appended to the array at path.
// Anything other than an existing array leaves root unchanged.
func Push(root any, path string, value any) (any, error) {
	return Update(root, path, func(cur any, exists bool) (any, bool) {
		arr, ok := cur.([]any)
		if !exists || !ok {
			return nil, false
		}
		out := make([]any, len(arr), len(arr)+1)
		copy(out, arr)
		return append(out, value), true
	})
}

// Clone returns a deep copy of a JSON-compatible value.
func Clone(v any) any {
	switch n := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, val := range n {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, val := range n {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}
