package rotation

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process rotation store for tests and single-node
// development. Cursors reset on restart.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

func (s *MemoryStore) Next(_ context.Context, key string, size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("rotation size must be positive, got %d", size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	counter := s.counters[key]
	s.counters[key] = counter + 1

	return int(counter % int64(size)), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, key)

	return nil
}
