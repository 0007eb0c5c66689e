package quota

import (
	"context"
	"sync"
)

// MemoryStore keeps ledgers in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	ledgers map[string]Ledger
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: make(map[string]Ledger)}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, slug string) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLedger(s.ledgers[slug]), nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, slug string, mutate func(Ledger) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := cloneLedger(s.ledgers[slug])
	if mutate(ledger) {
		s.ledgers[slug] = ledger
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneLedger(src Ledger) Ledger {
	out := make(Ledger, len(src))
	for day, counters := range src {
		c := make(map[Feature]int64, len(counters))
		for f, v := range counters {
			c[f] = v
		}
		out[day] = c
	}
	return out
}
