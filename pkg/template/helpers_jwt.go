package template

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mockenv/mockenv/internal/selector"
)

func registerJWTHelpers(r *Registry) {
	r.RegisterFunc("jwtPayload", func(c *Call) (any, error) {
		tok, ok := parseJWT(c.Arg(0))
		if !ok {
			return "", nil
		}
		claims, _ := tok.Claims.(jwt.MapClaims)
		return jwtPart(map[string]any(claims), optPath(c.Arg(1))), nil
	})
	r.RegisterFunc("jwtHeader", func(c *Call) (any, error) {
		tok, ok := parseJWT(c.Arg(0))
		if !ok {
			return "", nil
		}
		return jwtPart(tok.Header, optPath(c.Arg(1))), nil
	})
}

// parseJWT decodes a token without verifying its signature. A leading
// "Bearer " is ignored.
func parseJWT(v any) (*jwt.Token, bool) {
	raw := strings.TrimSpace(ToString(v))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, false
	}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	return tok, true
}

func jwtPart(part map[string]any, path string) any {
	if path == "" {
		return part
	}
	if v, ok := selector.Get(part, path); ok {
		return v
	}
	return ""
}
