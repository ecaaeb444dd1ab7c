package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePath(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		endpoint   string
		path       string
		wantMatch  bool
		wantParams map[string]string
	}{
		{"exact", "", "users", "/users", true, map[string]string{}},
		{"trailing slash", "", "users", "/users/", true, map[string]string{}},
		{"case insensitive", "", "users", "/USERS", true, map[string]string{}},
		{"no partial", "", "users", "/users/1", false, nil},
		{"root", "", "", "/", true, map[string]string{}},
		{"param", "", "users/:id", "/users/42", true, map[string]string{"id": "42"}},
		{"two params", "", "users/:id/posts/:postId", "/users/1/posts/9", true, map[string]string{"id": "1", "postId": "9"}},
		{"param does not cross slash", "", "users/:id", "/users/1/2", false, nil},
		{"optional param present", "", "users/:id?", "/users/3", true, map[string]string{"id": "3"}},
		{"optional param absent", "", "users/:id?", "/users", true, map[string]string{}},
		{"wildcard", "", "files/*", "/files/a/b.txt", true, map[string]string{"0": "a/b.txt"}},
		{"prefix", "/api/", "users", "/api/users", true, map[string]string{}},
		{"prefix required", "api", "users", "/users", false, nil},
		{"escaped parens", "", `items\(1\)`, "/items(1)", true, map[string]string{}},
		{"escaped colon", "", `a\:b`, "/a:b", true, map[string]string{}},
		{"optional group", "", "colou?r", "/color", true, map[string]string{}},
		{"dots are literal", "", "file.json", "/fileXjson", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompilePath(tt.prefix, tt.endpoint)
			require.NoError(t, err)
			params, ok := p.Match(tt.path)
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				assert.Equal(t, tt.wantParams, params)
			}
		})
	}
}

func TestCompilePath_Invalid(t *testing.T) {
	for _, endpoint := range []string{"a)", "(a", "a(b"} {
		_, err := CompilePath("", endpoint)
		assert.ErrorIs(t, err, ErrInvalidPattern, endpoint)
	}
}

func TestPatternString(t *testing.T) {
	p, err := CompilePath("api", "users/:id")
	require.NoError(t, err)
	assert.Equal(t, "/api/users/:id", p.String())
}
