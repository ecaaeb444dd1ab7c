package matching

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPattern is returned for endpoint patterns that cannot compile.
var ErrInvalidPattern = errors.New("invalid endpoint pattern")

// Pattern is a compiled endpoint pattern.
type Pattern struct {
	raw   string
	re    *regexp.Regexp
	names []string
}

// CompilePath compiles prefix and endpoint into a Pattern matching decoded
// request paths. Matching is case-insensitive and tolerates a trailing
// slash.
func CompilePath(prefix, endpoint string) (*Pattern, error) {
	prefix = strings.Trim(prefix, "/")
	endpoint = strings.TrimPrefix(endpoint, "/")

	full := "/"
	if prefix != "" {
		full += prefix
		if endpoint != "" {
			full += "/"
		}
	}
	full += endpoint

	var (
		b      strings.Builder
		names  []string
		depth  int
		wildID int
	)
	b.WriteString(`(?i)^`)
	for i := 0; i < len(full); i++ {
		c := full[i]
		switch {
		case c == '\\':
			if i+1 < len(full) {
				i++
				b.WriteString(regexp.QuoteMeta(string(full[i])))
			}
		case c == ':' && i+1 < len(full) && isNameChar(full[i+1]):
			j := i + 1
			for j < len(full) && isNameChar(full[j]) {
				j++
			}
			names = append(names, full[i+1:j])
			if j < len(full) && full[j] == '?' {
				// an optional parameter takes its leading slash with it
				s := b.String()
				if strings.HasSuffix(s, "/") {
					b.Reset()
					b.WriteString(strings.TrimSuffix(s, "/"))
					b.WriteString(`(?:/([^/]+?))?`)
				} else {
					b.WriteString(`([^/]+?)?`)
				}
				j++
			} else {
				b.WriteString(`([^/]+?)`)
			}
			i = j - 1
		case c == '*':
			names = append(names, strconv.Itoa(wildID))
			wildID++
			b.WriteString(`(.*)`)
		case c == '(':
			depth++
			b.WriteString(`(?:`)
		case c == ')':
			if depth == 0 {
				return nil, fmt.Errorf("%w: unbalanced ')' in %q", ErrInvalidPattern, endpoint)
			}
			depth--
			b.WriteByte(')')
		case c == '?' || c == '+':
			b.WriteByte(c)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced '(' in %q", ErrInvalidPattern, endpoint)
	}
	src := strings.TrimSuffix(b.String(), "/") + `/?$`

	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &Pattern{raw: full, re: re, names: names}, nil
}

func isNameChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// Match reports whether path matches and returns the captured parameters.
// Wildcards are captured under "0", "1", ... in order.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(p.names))
	for i, name := range p.names {
		if i+1 < len(m) && m[i+1] != "" {
			params[name] = m[i+1]
		}
	}
	return params, true
}

// String returns the pattern as written, including the prefix.
func (p *Pattern) String() string {
	return p.raw
}
