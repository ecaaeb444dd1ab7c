package template

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// errFakerName is returned when faker is called without a method name.
var errFakerName = errors.New("missing faker method name")

// fakerShortcuts maps helper names to generator methods.
var fakerShortcuts = map[string]string{
	"uuid":        "string.uuid",
	"guid":        "string.uuid",
	"title":       "person.prefix",
	"firstName":   "person.firstName",
	"lastName":    "person.lastName",
	"company":     "company.name",
	"domain":      "internet.domainName",
	"email":       "internet.email",
	"street":      "location.streetAddress",
	"city":        "location.city",
	"country":     "location.country",
	"countryCode": "location.countryCode",
	"zipcode":     "location.zipCode",
	"postcode":    "location.zipCode",
	"lat":         "location.latitude",
	"long":        "location.longitude",
	"phone":       "phone.number",
	"color":       "color.human",
	"ipv4":        "internet.ipv4",
	"ipv6":        "internet.ipv6",
}

func registerFakerHelpers(r *Registry) {
	r.RegisterFunc("faker", func(c *Call) (any, error) {
		name, ok := c.StringArg(0)
		if !ok || name == "" {
			return nil, errFakerName
		}
		var rest []any
		if c.NumArgs() > 1 {
			rest = c.Args[1:]
		}
		v, err := c.Faker().Call(name, rest, c.Hash)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	for helper, method := range fakerShortcuts {
		r.RegisterFunc(helper, func(c *Call) (any, error) {
			return c.Faker().Call(method, nil, nil)
		})
	}

	r.RegisterFunc("tld", func(c *Call) (any, error) {
		v, err := c.Faker().Call("internet.domainName", nil, nil)
		if err != nil {
			return nil, err
		}
		s := ToString(v)
		return s[strings.LastIndexByte(s, '.')+1:], nil
	})
	r.RegisterFunc("hexColor", func(c *Call) (any, error) {
		return strconv.FormatInt(int64(c.Faker().IntN(0xffffff+1)), 16), nil
	})
	r.RegisterFunc("boolean", func(c *Call) (any, error) {
		return c.Faker().Bool(), nil
	})
	r.RegisterFunc("objectId", func(c *Call) (any, error) {
		return c.Faker().ObjectID(), nil
	})
	r.RegisterFunc("lorem", func(c *Call) (any, error) {
		n, _ := c.Arg(0).(float64)
		return c.Faker().Sentence(int(n)), nil
	})
	r.RegisterFunc("int", func(c *Call) (any, error) {
		lo, hi := numericBounds(c, 0, 99999)
		return float64(c.Faker().IntRange(int(math.Ceil(lo)), int(math.Floor(hi)))), nil
	})
	r.RegisterFunc("float", func(c *Call) (any, error) {
		lo, hi := numericBounds(c, 0, 99999)
		f := lo + c.Faker().Float64()*(hi-lo)
		return math.Round(f*1e10) / 1e10, nil
	})
}

// numericBounds reads optional numeric min and max arguments.
func numericBounds(c *Call, lo, hi float64) (float64, float64) {
	if v, ok := c.Arg(0).(float64); ok {
		lo = v
	}
	if v, ok := c.Arg(1).(float64); ok {
		hi = v
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi
}
