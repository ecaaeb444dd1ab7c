package requestlog

import (
	"strconv"
	"sync"
	"time"
)

// DefaultMaxEntries is the MemoryStore capacity when none is given.
const DefaultMaxEntries = 1000

// MemoryStore keeps the most recent entries in a bounded buffer.
type MemoryStore struct {
	entries    []*Entry
	maxEntries int
	mu         sync.RWMutex
	nextID     int64
}

// NewMemoryStore creates a store holding at most maxEntries entries.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:    make([]*Entry, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Log records entry, evicting the oldest one when full.
func (s *MemoryStore) Log(entry *Entry) {
	if entry == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stamp(entry, s.nextID)
	if len(s.entries) >= s.maxEntries {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, entry)
}

// stamp fills the defaults of a new entry.
func stamp(entry *Entry, n int64) {
	if entry.ID == "" {
		entry.ID = "req-" + strconv.FormatInt(n, 36)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Protocol == "" {
		entry.Protocol = ProtocolHTTP
	}
}

// Get retrieves a log entry by ID.
func (s *MemoryStore) Get(id string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

// List returns entries newest first.
func (s *MemoryStore) List(filter *Filter) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		if filter.Matches(s.entries[i]) {
			result = append(result, s.entries[i])
		}
	}
	return paginate(result, filter)
}

func paginate(result []*Entry, filter *Filter) []*Entry {
	if filter == nil {
		return result
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*Entry{}
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result
}

// Clear removes all log entries.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]*Entry, 0, s.maxEntries)
}

// Count returns the number of log entries.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Prune drops entries older than olderThan.
func (s *MemoryStore) Prune(olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if !entry.Timestamp.Before(olderThan) {
			kept = append(kept, entry)
		}
	}
	removed := len(s.entries) - len(kept)
	s.entries = kept
	return removed, nil
}
