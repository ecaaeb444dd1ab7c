package template

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mockenv/mockenv/internal/matching"
)

// SafeString is output that must not be HTML-escaped again.
type SafeString string

type undefined struct{}

// Undefined is the value of a missing path or argument. It renders empty
// and is falsy.
var Undefined any = undefined{}

// IsUndefined reports whether v is absent.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// IsMissing reports whether v is absent or nil.
func IsMissing(v any) bool {
	return v == nil || IsUndefined(v)
}

// Unwrap turns SafeString into string and Undefined into nil.
func Unwrap(v any) any {
	switch t := v.(type) {
	case SafeString:
		return string(t)
	case undefined:
		return nil
	}
	return v
}

// Truthy follows the usual template rules: false, nil, Undefined, "",
// 0 and empty arrays are falsy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil, undefined:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case SafeString:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	}
	return true
}

// ToString converts a value to its text form without escaping.
func ToString(v any) string {
	switch t := v.(type) {
	case nil, undefined:
		return ""
	case string:
		return t
	case SafeString:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return FormatNumber(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []any, map[string]any:
		return ToJSON(t)
	}
	return matching.Stringify(v)
}

// FormatNumber renders integers without a fraction and other values in
// their shortest form.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToJSON encodes v as compact JSON without HTML escaping.
func ToJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalizeJSON(v)); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// normalizeJSON replaces template-only values so they encode cleanly.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case SafeString:
		return string(t)
	case undefined:
		return nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeJSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeJSON(e)
		}
		return out
	}
	return v
}

// ToNumber coerces numbers and numeric strings. Anything else is absent.
func ToNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case SafeString:
		return ToNumber(string(t))
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, false
		}
		return matching.ToFloat64(t)
	case bool, nil, undefined:
		return 0, false
	}
	return matching.ToFloat64(v)
}

// ToInt coerces like ToNumber and truncates.
func ToInt(v any) (int, bool) {
	f, ok := ToNumber(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"`", "&#x60;",
	"=", "&#x3D;",
)

// EscapeHTML escapes the characters that are unsafe in HTML output.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// output renders a top-level value.
func output(v any, escape bool) string {
	switch t := v.(type) {
	case string:
		if escape {
			return EscapeHTML(t)
		}
		return t
	case SafeString:
		return string(t)
	}
	return ToString(v)
}
