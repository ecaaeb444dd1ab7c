package content

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/template"
)

// HeaderParsingError replaces a header value whose template fails.
const HeaderParsingError = "-- Header parsing error --"

var (
	secureAttr = regexp.MustCompile(`(?i);\s*secure`)
	domainAttr = regexp.MustCompile(`(?i);\s*domain=[^;]*`)
)

// StripSecure removes the Secure attribute from a Set-Cookie value.
func StripSecure(cookie string) string {
	return secureAttr.ReplaceAllString(cookie, "")
}

// StripDomain removes the Domain attribute from a Set-Cookie value.
func StripDomain(cookie string) string {
	return domainAttr.ReplaceAllString(cookie, "")
}

// RenderHeaders templates every header value. Headers with an empty key
// or value are dropped. A failing template yields HeaderParsingError and
// is reported through onErr when set.
func RenderHeaders(engine *template.Engine, headers []environment.Header, ctx *template.Context, onErr func(key string, err error)) []environment.Header {
	out := make([]environment.Header, 0, len(headers))
	for _, h := range headers {
		if h.Key == "" || h.Value == "" {
			continue
		}
		v, err := engine.Render(h.Value, ctx)
		if err != nil {
			if onErr != nil {
				onErr(h.Key, err)
			}
			v = HeaderParsingError
		}
		out = append(out, environment.Header{Key: h.Key, Value: v})
	}
	return out
}

// ApplyHeaders writes headers into dst. Later values replace earlier ones
// except Set-Cookie, which accumulates with the Secure attribute removed.
func ApplyHeaders(dst http.Header, headers []environment.Header) {
	for _, h := range headers {
		if strings.EqualFold(h.Key, "Set-Cookie") {
			dst.Add("Set-Cookie", StripSecure(h.Value))
			continue
		}
		dst.Set(h.Key, h.Value)
	}
}

// HeaderValue returns the last value of key in headers, case-insensitively.
func HeaderValue(headers []environment.Header, key string) (string, bool) {
	var (
		v     string
		found bool
	)
	for _, h := range headers {
		if strings.EqualFold(h.Key, key) {
			v, found = h.Value, true
		}
	}
	return v, found
}
