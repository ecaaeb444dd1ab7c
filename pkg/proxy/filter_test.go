package proxy

import "testing"

// TestMatchGlob tests glob pattern matching.
func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		// Exact match
		{"/api/users", "/api/users", true},
		{"/api/users", "/api/items", false},

		// Single segment wildcard
		{"/api/*", "/api/users", true},
		{"/api/*", "/api/users/123", false},
		{"/api/*", "/other/path", false},

		// Recursive wildcard
		{"/api/**", "/api/users/123", true},
		{"/**/users", "/v1/api/users", true},
		{"/**/users", "/api/items", false},

		// Wildcard in middle
		{"/api/*/details", "/api/users/details", true},
		{"/api/*/details", "/api/users/summary", false},

		// Alternatives
		{"/{users,items}/*", "/items/4", true},

		// Edge cases
		{"", "", true},
		{"", "/path", false},
		{"/path", "", false},
		{"[", "/path", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_vs_"+tt.input, func(t *testing.T) {
			got := matchGlob(tt.pattern, tt.input)
			if got != tt.want {
				t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.input, got, tt.want)
			}
		})
	}
}

// TestShouldRecord tests filter logic with include/exclude precedence.
func TestShouldRecord(t *testing.T) {
	t.Run("nil filter records everything", func(t *testing.T) {
		var f *Filter
		if !f.ShouldRecord("/api/users") {
			t.Error("expected nil filter to record")
		}
	})

	t.Run("empty filter records everything", func(t *testing.T) {
		f := &Filter{}
		if !f.ShouldRecord("/api/users") {
			t.Error("expected empty filter to record")
		}
	})

	t.Run("exclude wins over include", func(t *testing.T) {
		f := &Filter{IncludePaths: []string{"/api/**"}, ExcludePaths: []string{"/api/health"}}
		if f.ShouldRecord("/api/health") {
			t.Error("expected excluded path to be skipped")
		}
		if !f.ShouldRecord("/api/users/1") {
			t.Error("expected included path to be recorded")
		}
	})

	t.Run("include restricts", func(t *testing.T) {
		f := &Filter{IncludePaths: []string{"/api/**"}}
		if f.ShouldRecord("/static/app.js") {
			t.Error("expected path outside include list to be skipped")
		}
	})
}

func TestFilterValidate(t *testing.T) {
	if err := (&Filter{IncludePaths: []string{"/api/**"}}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&Filter{ExcludePaths: []string{"/api/["}}).Validate(); err == nil {
		t.Error("expected malformed pattern to fail validation")
	}
}
