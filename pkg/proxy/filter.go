package proxy

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects which proxied paths are recorded. Patterns are
// doublestar globs: `*` stays within a path segment, `**` crosses them.
type Filter struct {
	IncludePaths []string // record only if the path matches (empty = all)
	ExcludePaths []string // never record if the path matches
}

// ShouldRecord determines if a request path should be recorded.
// Precedence:
// 1. If it matches ANY exclude pattern → NOT recorded
// 2. If include patterns exist AND it matches NONE → NOT recorded
// 3. Otherwise → recorded
func (f *Filter) ShouldRecord(path string) bool {
	if f == nil {
		return true
	}
	for _, pattern := range f.ExcludePaths {
		if matchGlob(pattern, path) {
			return false
		}
	}
	if len(f.IncludePaths) == 0 {
		return true
	}
	for _, pattern := range f.IncludePaths {
		if matchGlob(pattern, path) {
			return true
		}
	}
	return false
}

// Validate reports the first malformed pattern.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, list := range [][]string{f.IncludePaths, f.ExcludePaths} {
		for _, pattern := range list {
			if !doublestar.ValidatePattern(pattern) {
				return doublestar.ErrBadPattern
			}
		}
	}
	return nil
}

func matchGlob(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
