package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooseEqual(t *testing.T) {
	tests := []struct {
		actual, expected any
		want             bool
	}{
		{"abc", "abc", true},
		{"abc", "abd", false},
		{float64(5), "5", true},
		{"5.0", "5", true},
		{true, "true", true},
		{nil, "", true},
		{[]any{"a"}, `["a"]`, true},
		{map[string]any{"a": float64(1)}, `{"a":1}`, true},
		{"NaN", "NaN", true},
		{"x", float64(0), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooseEqual(tt.actual, tt.expected), "%v == %v", tt.actual, tt.expected)
	}
}

func TestToFloat64(t *testing.T) {
	f, ok := ToFloat64("12.5")
	assert.True(t, ok)
	assert.Equal(t, 12.5, f)

	_, ok = ToFloat64("twelve")
	assert.False(t, ok)
	_, ok = ToFloat64("NaN")
	assert.False(t, ok)
	_, ok = ToFloat64(nil)
	assert.False(t, ok)
}

func TestRegexCache(t *testing.T) {
	c := NewRegexCache()

	re, err := c.Get("^ab+c$", false)
	assert.NoError(t, err)
	assert.True(t, re.MatchString("abbc"))
	assert.False(t, re.MatchString("ABBC"))

	re, err = c.Get("^ab+c$", true)
	assert.NoError(t, err)
	assert.True(t, re.MatchString("ABBC"))

	again, _ := c.Get("^ab+c$", true)
	assert.Same(t, re, again)

	_, err = c.Get("(", false)
	assert.Error(t, err)
}
