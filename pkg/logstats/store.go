package logstats

import "sync"

// MemoryStore keeps statistics rows in memory. It backs the local profile
// and tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows []Statistics
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save appends one row.
func (s *MemoryStore) Save(stats Statistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, stats)
	return nil
}

// Rows returns a copy of the persisted rows.
func (s *MemoryStore) Rows() []Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Statistics, len(s.rows))
	copy(out, s.rows)
	return out
}
