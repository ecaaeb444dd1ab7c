package requestlog

import (
	"strings"
	"time"
)

// Logger records entries.
type Logger interface {
	Log(entry *Entry)
}

// Store is request history storage.
type Store interface {
	Logger

	// Get retrieves a log entry by ID.
	Get(id string) *Entry

	// List returns entries newest first, optionally filtered.
	List(filter *Filter) []*Entry

	// Clear removes all log entries.
	Clear()

	// Count returns the number of log entries.
	Count() int
}

// Pruner is a store that can drop old entries.
type Pruner interface {
	Prune(olderThan time.Time) (int, error)
}

// Filter defines criteria for filtering request logs.
type Filter struct {
	Protocol string
	Method   string
	// Path filters by path prefix.
	Path       string
	RouteUUID  string
	StatusCode int
	HasError   *bool
	Proxied    *bool

	Limit  int
	Offset int
}

// Matches reports whether entry satisfies every criterion of f.
func (f *Filter) Matches(entry *Entry) bool {
	if f == nil {
		return true
	}
	if f.Protocol != "" && entry.Protocol != f.Protocol {
		return false
	}
	if f.Method != "" && !strings.EqualFold(entry.Method, f.Method) {
		return false
	}
	if f.Path != "" && !strings.HasPrefix(entry.Path, f.Path) {
		return false
	}
	if f.RouteUUID != "" && entry.RouteUUID != f.RouteUUID {
		return false
	}
	if f.StatusCode != 0 && entry.ResponseStatus != f.StatusCode {
		return false
	}
	if f.HasError != nil && *f.HasError != (entry.Error != "") {
		return false
	}
	if f.Proxied != nil && *f.Proxied != entry.Proxied {
		return false
	}
	return true
}
