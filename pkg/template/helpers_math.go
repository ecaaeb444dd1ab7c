package template

import (
	"math"
	"strconv"
	"strings"
)

func registerMathHelpers(r *Registry) {
	r.RegisterFunc("add", reduceNumbers(func(acc, n float64) (float64, bool) { return acc + n, true }))
	r.RegisterFunc("subtract", reduceNumbers(func(acc, n float64) (float64, bool) { return acc - n, true }))
	r.RegisterFunc("multiply", reduceNumbers(func(acc, n float64) (float64, bool) { return acc * n, true }))
	r.RegisterFunc("divide", reduceNumbers(func(acc, n float64) (float64, bool) {
		if n == 0 {
			return 0, false
		}
		return acc / n, true
	}))
	r.RegisterFunc("modulo", func(c *Call) (any, error) {
		a, okA := c.NumberArg(0)
		b, okB := c.NumberArg(1)
		if !okA || !okB || b == 0 {
			return "", nil
		}
		return math.Mod(a, b), nil
	})
	r.RegisterFunc("ceil", unaryNumber(math.Ceil))
	r.RegisterFunc("floor", unaryNumber(math.Floor))
	r.RegisterFunc("round", unaryNumber(roundHalfUp))
	r.RegisterFunc("toFixed", func(c *Call) (any, error) {
		n, ok := c.NumberArg(0)
		if !ok {
			n = 0
		}
		digits, ok := ToInt(c.Arg(1))
		if !ok || digits < 0 {
			digits = 0
		}
		return strconv.FormatFloat(n, 'f', digits, 64), nil
	})
	r.RegisterFunc("parseInt", func(c *Call) (any, error) {
		n, ok := parseIntPrefix(ToString(c.Arg(0)))
		if !ok {
			return "", nil
		}
		return n, nil
	})
	r.RegisterFunc("eq", compareNumbers(func(a, b float64) bool { return a == b }))
	r.RegisterFunc("gt", compareNumbers(func(a, b float64) bool { return a > b }))
	r.RegisterFunc("gte", compareNumbers(func(a, b float64) bool { return a >= b }))
	r.RegisterFunc("lt", compareNumbers(func(a, b float64) bool { return a < b }))
	r.RegisterFunc("lte", compareNumbers(func(a, b float64) bool { return a <= b }))
	r.RegisterFunc("and", func(c *Call) (any, error) {
		if c.NumArgs() == 0 {
			return false, nil
		}
		for _, a := range c.Args {
			if !Truthy(a) {
				return false, nil
			}
		}
		return true, nil
	})
	r.RegisterFunc("or", func(c *Call) (any, error) {
		for _, a := range c.Args {
			if Truthy(a) {
				return true, nil
			}
		}
		return false, nil
	})
	r.RegisterFunc("not", func(c *Call) (any, error) {
		return !Truthy(c.Arg(0)), nil
	})
}

// reduceNumbers folds the numeric arguments left to right. Arguments that
// are not numbers are skipped. A step returning false ends the fold with
// an empty result.
func reduceNumbers(step func(acc, n float64) (float64, bool)) HelperFunc {
	return func(c *Call) (any, error) {
		var acc float64
		seen := false
		for _, a := range c.Args {
			n, ok := ToNumber(a)
			if !ok {
				continue
			}
			if !seen {
				acc, seen = n, true
				continue
			}
			next, ok := step(acc, n)
			if !ok {
				return "", nil
			}
			acc = next
		}
		if !seen {
			return "", nil
		}
		return acc, nil
	}
}

func unaryNumber(fn func(float64) float64) HelperFunc {
	return func(c *Call) (any, error) {
		n, ok := c.NumberArg(0)
		if !ok {
			return "", nil
		}
		return fn(n), nil
	}
}

func compareNumbers(cmp func(a, b float64) bool) HelperFunc {
	return func(c *Call) (any, error) {
		a, okA := c.NumberArg(0)
		b, okB := c.NumberArg(1)
		if !okA || !okB {
			return false, nil
		}
		return cmp(a, b), nil
	}
}

// roundHalfUp rounds .5 towards positive infinity.
func roundHalfUp(f float64) float64 {
	return math.Floor(f + 0.5)
}

// parseIntPrefix reads the leading base-10 integer of s.
func parseIntPrefix(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
