package template

import (
	"time"
)

const jsDateLayout = "Mon Jan 02 2006 15:04:05 GMT-0700"

func registerDateHelpers(r *Registry) {
	r.RegisterFunc("now", func(c *Call) (any, error) {
		return FormatDate(c.Ctx.now(), formatArg(c.Arg(0))), nil
	})
	r.RegisterFunc("dateTimeShift", dateTimeShiftHelper)
	r.RegisterFunc("dateFormat", func(c *Call) (any, error) {
		now := c.Ctx.now()
		d, ok := ParseDate(Unwrap(c.Arg(0)), now.Location())
		if !ok {
			return "", nil
		}
		return FormatDate(d, formatArg(c.Arg(1))), nil
	})
	r.RegisterFunc("isValidDate", func(c *Call) (any, error) {
		_, ok := ParseDate(Unwrap(c.Arg(0)), c.Ctx.now().Location())
		return ok, nil
	})
	r.RegisterFunc("date", func(c *Call) (any, error) {
		loc := c.Ctx.now().Location()
		from, okFrom := ParseDate(stringOnly(c.Arg(0)), loc)
		to, okTo := ParseDate(stringOnly(c.Arg(1)), loc)
		if !okFrom || !okTo {
			return "", nil
		}
		d := c.Faker().DateBetween(from, to)
		if format, ok := c.StringArg(2); ok {
			return FormatDate(d, format), nil
		}
		return d.Format(jsDateLayout), nil
	})
	r.RegisterFunc("time", func(c *Call) (any, error) {
		from, okFrom := c.StringArg(0)
		to, okTo := c.StringArg(1)
		if !okFrom || !okTo {
			return "", nil
		}
		a, okA := ParseDate("1970-01-01T"+from, time.UTC)
		b, okB := ParseDate("1970-01-01T"+to, time.UTC)
		if !okA || !okB {
			return "", nil
		}
		format, ok := c.StringArg(2)
		if !ok {
			format = "HH:mm"
		}
		return FormatDate(c.Faker().DateBetween(a, b), format), nil
	})
}

func formatArg(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return DefaultDateFormat
}

func stringOnly(v any) any {
	switch v.(type) {
	case string, SafeString:
		return v
	}
	return nil
}

// dateTimeShiftHelper shifts date (default now) by the days, months,
// years, hours, minutes and seconds hash arguments.
func dateTimeShiftHelper(c *Call) (any, error) {
	d := c.Ctx.now()
	if v, ok := c.HashArg("date"); ok {
		parsed, ok := ParseDate(Unwrap(v), d.Location())
		if !ok {
			return "Invalid Date", nil
		}
		d = parsed
	}
	shift := func(key string) int {
		v, ok := c.HashArg(key)
		if !ok {
			return 0
		}
		n, ok := parseIntPrefix(ToString(v))
		if !ok {
			return 0
		}
		return int(n)
	}
	d = d.AddDate(shift("years"), shift("months"), shift("days"))
	d = d.Add(time.Duration(shift("hours"))*time.Hour +
		time.Duration(shift("minutes"))*time.Minute +
		time.Duration(shift("seconds"))*time.Second)

	format, _ := c.HashArg("format")
	return FormatDate(d, formatArg(Unwrap(format))), nil
}
