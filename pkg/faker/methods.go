package faker

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Errors returned by Call.
var (
	ErrMissingMethod   = errors.New("faker method name is missing")
	ErrMalformedMethod = errors.New("faker method name must be namespace.method")
	ErrUnknownMethod   = errors.New("unknown faker method")
)

var methodName = regexp.MustCompile(`^[a-zA-Z]+\.[a-zA-Z0-9]+$`)

// Args carries the arguments of a faker call. Positional holds the values
// after the method name; Options merges the named arguments with any object
// passed positionally (either a map or an object literal string).
type Args struct {
	Positional []any
	Options    map[string]any
}

// Method generates one value.
type Method func(g *Generator, a Args) (any, error)

var registry = map[string]Method{}

func register(name string, m Method) {
	registry[name] = m
}

// Methods returns the supported method names, sorted.
func Methods() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a supported method.
func Has(name string) bool {
	_, ok := registry[name]
	return ok
}

// Call invokes the named method. Object-valued positional arguments,
// including object literal strings such as `{"min": 1, "max": 5}`, are folded
// into the options together with named.
func (g *Generator) Call(name string, positional []any, named map[string]any) (any, error) {
	if name == "" {
		return nil, ErrMissingMethod
	}
	if !methodName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedMethod, name)
	}
	m, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}

	args := Args{Options: map[string]any{}}
	for _, p := range positional {
		if obj, isObj := asObject(p); isObj {
			for k, v := range obj {
				args.Options[k] = v
			}
			continue
		}
		args.Positional = append(args.Positional, p)
	}
	for k, v := range named {
		args.Options[k] = v
	}
	return m(g, args)
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
			return nil, false
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(relaxObjectLiteral(s)), &obj); err != nil {
			return nil, false
		}
		return obj, true
	case fmt.Stringer:
		return asObject(t.String())
	}
	return nil, false
}

var bareKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// relaxObjectLiteral accepts JavaScript-style literals with bare keys and
// single quotes.
func relaxObjectLiteral(s string) string {
	s = strings.ReplaceAll(s, "'", `"`)
	return bareKey.ReplaceAllString(s, `$1"$2":`)
}

// Int reads an integer option, then the positional argument at pos, then def.
func (a Args) Int(key string, pos int, def int) int {
	if v, ok := a.Options[key]; ok {
		if n, ok := toFloat(v); ok {
			return int(n)
		}
	}
	if pos >= 0 && pos < len(a.Positional) {
		if n, ok := toFloat(a.Positional[pos]); ok {
			return int(n)
		}
	}
	return def
}

// Float reads a numeric option, then the positional argument at pos, then def.
func (a Args) Float(key string, pos int, def float64) float64 {
	if v, ok := a.Options[key]; ok {
		if n, ok := toFloat(v); ok {
			return n
		}
	}
	if pos >= 0 && pos < len(a.Positional) {
		if n, ok := toFloat(a.Positional[pos]); ok {
			return n
		}
	}
	return def
}

// String reads a string option, then the positional argument at pos, then def.
func (a Args) String(key string, pos int, def string) string {
	if v, ok := a.Options[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	if pos >= 0 && pos < len(a.Positional) && a.Positional[pos] != nil {
		return fmt.Sprint(a.Positional[pos])
	}
	return def
}

// Slice reads a list option or positional argument. JSON array strings are
// decoded.
func (a Args) Slice(key string, pos int) []any {
	var v any
	if o, ok := a.Options[key]; ok {
		v = o
	} else if pos >= 0 && pos < len(a.Positional) {
		v = a.Positional[pos]
	}
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case string:
		var arr []any
		if err := json.Unmarshal([]byte(t), &arr); err == nil {
			return arr
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case fmt.Stringer:
		return toFloat(n.String())
	}
	return 0, false
}

func roundTo(f float64, digits int) float64 {
	if digits < 0 {
		return f
	}
	p := math.Pow(10, float64(digits))
	return math.Round(f*p) / p
}

func isoDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func parseDateOption(v string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

const day = 24 * time.Hour

func init() {
	// person
	register("person.firstName", func(g *Generator, _ Args) (any, error) { return g.FirstName(), nil })
	register("person.lastName", func(g *Generator, _ Args) (any, error) { return g.LastName(), nil })
	register("person.middleName", func(g *Generator, _ Args) (any, error) { return g.FirstName(), nil })
	register("person.fullName", func(g *Generator, _ Args) (any, error) {
		return g.FirstName() + " " + g.LastName(), nil
	})
	register("person.prefix", func(g *Generator, _ Args) (any, error) { return g.Pick(namePrefixes), nil })
	register("person.sex", func(g *Generator, _ Args) (any, error) { return g.Pick(sexes), nil })
	register("person.jobTitle", func(g *Generator, _ Args) (any, error) {
		return g.Pick(jobLevels) + " " + g.Pick(jobFields) + " " + g.Pick(jobRoles), nil
	})
	register("person.jobArea", func(g *Generator, _ Args) (any, error) { return g.Pick(jobFields), nil })
	register("person.jobType", func(g *Generator, _ Args) (any, error) { return g.Pick(jobRoles), nil })

	// internet
	register("internet.userName", func(g *Generator, a Args) (any, error) {
		first := a.String("firstName", 0, g.FirstName())
		last := a.String("lastName", 1, g.LastName())
		return strings.ToLower(first) + "." + strings.ToLower(last) + strconv.Itoa(g.IntN(100)), nil
	})
	register("internet.email", func(g *Generator, a Args) (any, error) {
		first := a.String("firstName", 0, g.FirstName())
		last := a.String("lastName", 1, g.LastName())
		provider := a.String("provider", 2, g.Pick(freeEmailDomains))
		return strings.ToLower(first) + "." + strings.ToLower(last) + strconv.Itoa(g.IntN(100)) + "@" + provider, nil
	})
	register("internet.exampleEmail", func(g *Generator, _ Args) (any, error) {
		return strings.ToLower(g.FirstName()) + strconv.Itoa(g.IntN(100)) + "@example.com", nil
	})
	register("internet.domainWord", func(g *Generator, _ Args) (any, error) { return g.Pick(loremWords), nil })
	register("internet.domainName", func(g *Generator, _ Args) (any, error) {
		return g.Pick(loremWords) + "-" + g.Pick(loremWords) + "." + g.Pick(domainSuffixes), nil
	})
	register("internet.url", func(g *Generator, _ Args) (any, error) {
		return "https://" + g.Pick(loremWords) + "-" + g.Pick(loremWords) + "." + g.Pick(domainSuffixes) + "/", nil
	})
	register("internet.ip", func(g *Generator, _ Args) (any, error) { return g.IPv4(), nil })
	register("internet.ipv4", func(g *Generator, _ Args) (any, error) { return g.IPv4(), nil })
	register("internet.ipv6", func(g *Generator, _ Args) (any, error) { return g.IPv6(), nil })
	register("internet.mac", func(g *Generator, _ Args) (any, error) { return g.MAC(), nil })
	register("internet.port", func(g *Generator, _ Args) (any, error) { return float64(g.IntN(65536)), nil })
	register("internet.userAgent", func(g *Generator, _ Args) (any, error) { return g.Pick(userAgents), nil })
	register("internet.password", func(g *Generator, a Args) (any, error) {
		return g.Chars(alphaLower+alphaUpper+digits, a.Int("length", 0, 15)), nil
	})
	register("internet.color", func(g *Generator, _ Args) (any, error) { return "#" + g.Chars(hexDigits, 6), nil })
	register("internet.httpMethod", func(g *Generator, _ Args) (any, error) {
		return g.Pick([]string{"GET", "POST", "PUT", "PATCH", "DELETE"}), nil
	})

	// location (address.* kept as aliases)
	location := map[string]Method{
		"city":    func(g *Generator, _ Args) (any, error) { return g.Pick(cities), nil },
		"country": func(g *Generator, _ Args) (any, error) { return countries[g.IntN(len(countries))].name, nil },
		"countryCode": func(g *Generator, _ Args) (any, error) {
			return countries[g.IntN(len(countries))].code, nil
		},
		"state": func(g *Generator, _ Args) (any, error) { return g.Pick(states), nil },
		"zipCode": func(g *Generator, a Args) (any, error) {
			format := a.String("format", 0, "#####")
			return replaceSymbols(g, format), nil
		},
		"buildingNumber": func(g *Generator, _ Args) (any, error) { return strconv.Itoa(g.IntRange(1, 9999)), nil },
		"street": func(g *Generator, _ Args) (any, error) {
			return g.Pick(streetNames) + " " + g.Pick(streetSuffixes), nil
		},
		"streetAddress": func(g *Generator, _ Args) (any, error) {
			return strconv.Itoa(g.IntRange(1, 9999)) + " " + g.Pick(streetNames) + " " + g.Pick(streetSuffixes), nil
		},
		"latitude": func(g *Generator, a Args) (any, error) {
			lo, hi := a.Float("min", -1, -90), a.Float("max", -1, 90)
			return roundTo(lo+g.Float64()*(hi-lo), a.Int("precision", -1, 4)), nil
		},
		"longitude": func(g *Generator, a Args) (any, error) {
			lo, hi := a.Float("min", -1, -180), a.Float("max", -1, 180)
			return roundTo(lo+g.Float64()*(hi-lo), a.Int("precision", -1, 4)), nil
		},
		"timeZone": func(g *Generator, _ Args) (any, error) { return g.Pick(timeZones), nil },
	}
	for name, m := range location {
		register("location."+name, m)
		register("address."+name, m)
	}

	// phone
	register("phone.number", func(g *Generator, a Args) (any, error) {
		return replaceSymbols(g, a.String("format", 0, "+1-###-###-####")), nil
	})
	register("phone.imei", func(g *Generator, _ Args) (any, error) { return g.Chars(digits, 15), nil })

	// company
	register("company.name", func(g *Generator, _ Args) (any, error) {
		return g.LastName() + " " + g.Pick(companySuffixes), nil
	})
	register("company.catchPhrase", func(g *Generator, _ Args) (any, error) {
		return g.Pick(catchPhraseAdjectives) + " " + g.Pick(catchPhraseNouns), nil
	})
	register("company.buzzPhrase", func(g *Generator, _ Args) (any, error) {
		return g.Pick(verbs) + " " + g.Pick(catchPhraseAdjectives) + " " + g.Pick(catchPhraseNouns), nil
	})

	// commerce
	register("commerce.productName", func(g *Generator, _ Args) (any, error) {
		return g.Pick(productAdjectives) + " " + g.Pick(productMaterials) + " " + g.Pick(productNouns), nil
	})
	register("commerce.product", func(g *Generator, _ Args) (any, error) { return g.Pick(productNouns), nil })
	register("commerce.productAdjective", func(g *Generator, _ Args) (any, error) { return g.Pick(productAdjectives), nil })
	register("commerce.productMaterial", func(g *Generator, _ Args) (any, error) { return g.Pick(productMaterials), nil })
	register("commerce.department", func(g *Generator, _ Args) (any, error) { return g.Pick(departments), nil })
	register("commerce.price", func(g *Generator, a Args) (any, error) {
		lo, hi := a.Float("min", 0, 1), a.Float("max", 1, 1000)
		dec := a.Int("dec", 2, 2)
		return strconv.FormatFloat(roundTo(lo+g.Float64()*(hi-lo), dec), 'f', dec, 64), nil
	})

	// finance
	register("finance.iban", func(g *Generator, _ Args) (any, error) { return g.IBAN(), nil })
	register("finance.creditCardNumber", func(g *Generator, _ Args) (any, error) { return g.CreditCard(), nil })
	register("finance.currencyCode", func(g *Generator, _ Args) (any, error) { return g.Pick(currencyCodes), nil })
	register("finance.accountNumber", func(g *Generator, a Args) (any, error) {
		return g.Chars(digits, a.Int("length", 0, 8)), nil
	})
	register("finance.bic", func(g *Generator, _ Args) (any, error) {
		return g.Chars(alphaUpper, 6) + g.Chars(alphaUpper+digits, 2), nil
	})
	register("finance.amount", func(g *Generator, a Args) (any, error) {
		lo, hi := a.Float("min", 0, 0), a.Float("max", 1, 1000)
		dec := a.Int("dec", 2, 2)
		return strconv.FormatFloat(roundTo(lo+g.Float64()*(hi-lo), dec), 'f', dec, 64), nil
	})

	// string
	register("string.uuid", func(g *Generator, _ Args) (any, error) { return g.UUID(), nil })
	register("string.alpha", func(g *Generator, a Args) (any, error) {
		return g.Chars(alphaLower+alphaUpper, a.Int("length", 0, 1)), nil
	})
	register("string.alphanumeric", func(g *Generator, a Args) (any, error) {
		return g.Chars(alphanumeric, a.Int("length", 0, 1)), nil
	})
	register("string.numeric", func(g *Generator, a Args) (any, error) {
		return g.Chars(digits, a.Int("length", 0, 1)), nil
	})
	register("string.hexadecimal", func(g *Generator, a Args) (any, error) {
		return "0x" + g.Chars(hexDigits, a.Int("length", 0, 1)), nil
	})
	register("string.nanoid", func(g *Generator, a Args) (any, error) {
		return g.Chars(nanoidChars, a.Int("length", 0, 21)), nil
	})

	// number / datatype
	numberInt := func(g *Generator, a Args) (any, error) {
		lo := a.Int("min", -1, 0)
		hi := a.Int("max", 0, math.MaxInt32)
		if len(a.Positional) >= 2 {
			lo, hi = a.Int("", 0, lo), a.Int("", 1, hi)
		}
		if hi < lo {
			return nil, fmt.Errorf("max %d should be greater than min %d", hi, lo)
		}
		return float64(g.IntRange(lo, hi)), nil
	}
	register("number.int", numberInt)
	register("datatype.number", numberInt)
	register("number.float", func(g *Generator, a Args) (any, error) {
		lo := a.Float("min", -1, 0)
		hi := a.Float("max", 0, 1)
		if len(a.Positional) >= 2 {
			lo, hi = a.Float("", 0, lo), a.Float("", 1, hi)
		}
		fraction := a.Int("fractionDigits", -1, a.Int("precision", -1, -1))
		return roundTo(lo+g.Float64()*(hi-lo), fraction), nil
	})
	register("datatype.boolean", func(g *Generator, _ Args) (any, error) { return g.Bool(), nil })
	register("datatype.uuid", func(g *Generator, _ Args) (any, error) { return g.UUID(), nil })

	// date
	register("date.past", func(g *Generator, a Args) (any, error) {
		now := g.now()
		years := a.Int("years", 0, 1)
		return isoDate(g.DateBetween(now.AddDate(-years, 0, 0), now)), nil
	})
	register("date.future", func(g *Generator, a Args) (any, error) {
		now := g.now()
		years := a.Int("years", 0, 1)
		return isoDate(g.DateBetween(now, now.AddDate(years, 0, 0))), nil
	})
	register("date.recent", func(g *Generator, a Args) (any, error) {
		now := g.now()
		return isoDate(g.DateBetween(now.Add(-time.Duration(a.Int("days", 0, 1))*day), now)), nil
	})
	register("date.soon", func(g *Generator, a Args) (any, error) {
		now := g.now()
		return isoDate(g.DateBetween(now, now.Add(time.Duration(a.Int("days", 0, 1))*day))), nil
	})
	register("date.between", func(g *Generator, a Args) (any, error) {
		from, okFrom := parseDateOption(a.String("from", 0, ""))
		to, okTo := parseDateOption(a.String("to", 1, ""))
		if !okFrom || !okTo {
			return nil, errors.New("date.between requires valid from and to dates")
		}
		return isoDate(g.DateBetween(from, to)), nil
	})
	register("date.birthdate", func(g *Generator, _ Args) (any, error) {
		now := g.now()
		return isoDate(g.DateBetween(now.AddDate(-80, 0, 0), now.AddDate(-18, 0, 0))), nil
	})
	register("date.month", func(g *Generator, _ Args) (any, error) {
		return time.Month(g.IntRange(1, 12)).String(), nil
	})
	register("date.weekday", func(g *Generator, _ Args) (any, error) {
		return time.Weekday(g.IntN(7)).String(), nil
	})

	// lorem
	register("lorem.word", func(g *Generator, _ Args) (any, error) { return g.Pick(loremWords), nil })
	register("lorem.words", func(g *Generator, a Args) (any, error) {
		return strings.Join(g.Words(a.Int("count", 0, 3)), " "), nil
	})
	register("lorem.sentence", func(g *Generator, a Args) (any, error) {
		return g.Sentence(a.Int("wordCount", 0, 0)), nil
	})
	register("lorem.sentences", func(g *Generator, a Args) (any, error) {
		n := a.Int("count", 0, 2+g.IntN(5))
		out := make([]string, n)
		for i := range out {
			out[i] = g.Sentence(0)
		}
		return strings.Join(out, " "), nil
	})
	register("lorem.paragraph", func(g *Generator, a Args) (any, error) {
		return g.Paragraph(a.Int("sentenceCount", 0, 3)), nil
	})
	register("lorem.paragraphs", func(g *Generator, a Args) (any, error) {
		n := a.Int("count", 0, 3)
		out := make([]string, n)
		for i := range out {
			out[i] = g.Paragraph(3)
		}
		return strings.Join(out, "\n"), nil
	})
	register("lorem.slug", func(g *Generator, a Args) (any, error) {
		return strings.Join(g.Words(a.Int("count", 0, 3)), "-"), nil
	})
	register("lorem.lines", func(g *Generator, a Args) (any, error) {
		n := a.Int("count", 0, 3)
		out := make([]string, n)
		for i := range out {
			out[i] = g.Sentence(0)
		}
		return strings.Join(out, "\n"), nil
	})
	register("lorem.text", func(g *Generator, _ Args) (any, error) { return g.Paragraph(0), nil })

	// word
	register("word.adjective", func(g *Generator, _ Args) (any, error) { return g.Pick(adjectives), nil })
	register("word.noun", func(g *Generator, _ Args) (any, error) { return g.Pick(nouns), nil })
	register("word.verb", func(g *Generator, _ Args) (any, error) { return g.Pick(verbs), nil })
	register("word.sample", func(g *Generator, _ Args) (any, error) { return g.Pick(loremWords), nil })

	// database
	register("database.mongodbObjectId", func(g *Generator, _ Args) (any, error) { return g.ObjectID(), nil })
	register("database.column", func(g *Generator, _ Args) (any, error) { return g.Pick(databaseColumns), nil })
	register("database.type", func(g *Generator, _ Args) (any, error) { return g.Pick(databaseTypes), nil })

	// image
	register("image.url", func(g *Generator, a Args) (any, error) {
		w, h := a.Int("width", 0, 640), a.Int("height", 1, 480)
		return fmt.Sprintf("https://picsum.photos/seed/%s/%d/%d", g.Chars(alphanumeric, 8), w, h), nil
	})
	register("image.avatar", func(g *Generator, _ Args) (any, error) {
		return fmt.Sprintf("https://avatars.githubusercontent.com/u/%d", g.IntRange(1, 99999999)), nil
	})

	// color
	register("color.rgb", func(g *Generator, _ Args) (any, error) { return "#" + g.Chars(hexDigits, 6), nil })
	register("color.human", func(g *Generator, _ Args) (any, error) { return g.Pick(humanColors), nil })

	// system
	register("system.mimeType", func(g *Generator, _ Args) (any, error) { return g.Pick(mimeTypes), nil })
	register("system.fileExt", func(g *Generator, _ Args) (any, error) { return g.Pick(fileExtensions), nil })
	register("system.fileName", func(g *Generator, _ Args) (any, error) {
		return strings.Join(g.Words(2), "_") + "." + g.Pick(fileExtensions), nil
	})
	register("system.semver", func(g *Generator, _ Args) (any, error) {
		return fmt.Sprintf("%d.%d.%d", g.IntN(10), g.IntN(20), g.IntN(30)), nil
	})

	// animal & vehicle
	register("animal.dog", func(g *Generator, _ Args) (any, error) { return g.Pick(dogBreeds), nil })
	register("animal.cat", func(g *Generator, _ Args) (any, error) { return g.Pick(catBreeds), nil })
	register("animal.type", func(g *Generator, _ Args) (any, error) { return g.Pick(animalTypes), nil })
	register("vehicle.manufacturer", func(g *Generator, _ Args) (any, error) { return g.Pick(vehicleManufacturers), nil })
	register("vehicle.model", func(g *Generator, _ Args) (any, error) { return g.Pick(vehicleModels), nil })
	register("vehicle.vehicle", func(g *Generator, _ Args) (any, error) {
		return g.Pick(vehicleManufacturers) + " " + g.Pick(vehicleModels), nil
	})

	// helpers
	register("helpers.arrayElement", func(g *Generator, a Args) (any, error) {
		list := a.Slice("array", 0)
		if len(list) == 0 {
			return nil, errors.New("helpers.arrayElement requires a non-empty array")
		}
		return g.Element(list), nil
	})
	register("helpers.arrayElements", func(g *Generator, a Args) (any, error) {
		list := g.Shuffle(a.Slice("array", 0))
		n := a.Int("count", 1, -1)
		if n < 0 || n > len(list) {
			n = g.IntRange(1, max(len(list), 1))
			if n > len(list) {
				n = len(list)
			}
		}
		return list[:n], nil
	})
	register("helpers.shuffle", func(g *Generator, a Args) (any, error) {
		return g.Shuffle(a.Slice("array", 0)), nil
	})
	register("helpers.replaceSymbols", func(g *Generator, a Args) (any, error) {
		return replaceSymbols(g, a.String("string", 0, "")), nil
	})
	register("helpers.slugify", func(_ *Generator, a Args) (any, error) {
		return slugify(a.String("string", 0, "")), nil
	})
}

// replaceSymbols substitutes '#' with a digit, '?' with a letter and '*'
// with either.
func replaceSymbols(g *Generator, format string) string {
	var sb strings.Builder
	for _, r := range format {
		switch r {
		case '#':
			sb.WriteByte(digits[g.IntN(len(digits))])
		case '?':
			sb.WriteByte(alphaUpper[g.IntN(len(alphaUpper))])
		case '*':
			set := alphaUpper + digits
			sb.WriteByte(set[g.IntN(len(set))])
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

var nonSlug = regexp.MustCompile(`[^A-Za-z0-9.\-_~]+`)

func slugify(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
	return nonSlug.ReplaceAllString(s, "")
}
