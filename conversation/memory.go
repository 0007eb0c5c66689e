package conversation

import (
	"context"
	"sync"

	"github.com/creastat/assistant"
)

// MemoryStore implements Store using an in-memory map.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]assistant.Exchange
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]assistant.Exchange)}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, slug string) ([]assistant.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]assistant.Exchange, len(s.logs[slug]))
	copy(out, s.logs[slug])
	return out, nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, slug string, e assistant.Exchange) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[slug] = append(s.logs[slug], e)
	return len(s.logs[slug]) - 1, nil
}

// Replace implements Store.
func (s *MemoryStore) Replace(ctx context.Context, slug string, index int, e assistant.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[slug]
	if index < 0 || index >= len(log) {
		return assistant.ErrNotFound
	}
	log[index] = e
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
