// Package toast holds the in-app notification store. The store is passed
// into each component that raises user-facing notices, so nothing in the
// core reaches for ambient global state.
package toast

import "sync"

// Level classifies a notification for display.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one in-app toast/alert entry.
type Notification struct {
	Level Level
	Title string
	Body  string
}

// Sink receives notifications. Components hold a Sink, never the concrete
// store, so tests can substitute their own.
type Sink interface {
	Push(n Notification)
}

// Store is a bounded, thread-safe notification store. When full, the
// oldest entry is evicted.
type Store struct {
	mu      sync.Mutex
	entries []Notification
	limit   int
}

// NewStore creates a store keeping at most limit entries (min 1).
func NewStore(limit int) *Store {
	if limit < 1 {
		limit = 1
	}
	return &Store{limit: limit}
}

// Push appends a notification, evicting the oldest past the limit.
func (s *Store) Push(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, n)
	if len(s.entries) > s.limit {
		s.entries = s.entries[len(s.entries)-s.limit:]
	}
}

// All returns a snapshot of current entries, oldest first.
func (s *Store) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, len(s.entries))
	copy(out, s.entries)
	return out
}

// Clear drops all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
