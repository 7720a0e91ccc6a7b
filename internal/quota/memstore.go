package quota

import (
	"context"
	"sync"
)

// MemoryStore keeps anonymous usage counts in process memory. Counts reset
// on restart; that is a documented limitation of the free tier, not a bug.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (int, error) {
	if key == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}

func (s *MemoryStore) Increment(_ context.Context, key string) (int, error) {
	if key == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}
