package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Entry, 0)
	for _, e := range s.entries {
		if q.Match(e) {
			res = append(res, e)
		}
	}
	return tail(res, q.Limit), nil
}

func (s *MemoryStore) Close() error { return nil }
