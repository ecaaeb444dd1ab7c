package matching

import (
	"regexp"
	"sync"
)

// maxCachedRegexps bounds RegexCache; the cache is dropped when full.
const maxCachedRegexps = 512

// RegexCache memoizes compiled patterns, including failures.
type RegexCache struct {
	mu      sync.RWMutex
	entries map[string]regexEntry
}

type regexEntry struct {
	re  *regexp.Regexp
	err error
}

// NewRegexCache returns an empty cache.
func NewRegexCache() *RegexCache {
	return &RegexCache{entries: make(map[string]regexEntry)}
}

// Get compiles pattern, case-insensitively when fold is set.
func (c *RegexCache) Get(pattern string, fold bool) (*regexp.Regexp, error) {
	key := pattern
	if fold {
		key = "(?i)" + pattern
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e.re, e.err
	}

	re, err := regexp.Compile(key)
	c.mu.Lock()
	if len(c.entries) >= maxCachedRegexps {
		c.entries = make(map[string]regexEntry)
	}
	c.entries[key] = regexEntry{re: re, err: err}
	c.mu.Unlock()
	return re, err
}
