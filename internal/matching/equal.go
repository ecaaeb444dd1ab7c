package matching

import (
	"encoding/json"
	"math"
	"strconv"
)

// ToFloat64 converts numbers and numeric strings to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Stringify renders a value the way rule comparisons see it: strings as
// is, whole numbers without a fraction, nil as empty, containers as
// compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32, int, int64, int32, uint, uint64, uint32:
		f, _ := ToFloat64(t)
		return strconv.FormatFloat(f, 'f', -1, 64)
	case json.Number:
		return t.String()
	case []byte:
		return string(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// LooseEqual compares an extracted value with a rule value after
// coercion: numbers compare numerically when both sides are numeric,
// everything else compares by string form.
func LooseEqual(actual, expected any) bool {
	if a, ok := ToFloat64(actual); ok {
		if e, ok := ToFloat64(expected); ok {
			return a == e
		}
	}
	return Stringify(actual) == Stringify(expected)
}
