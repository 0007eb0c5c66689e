package llm

import "sync"

// KeyPool is an ordered set of API keys with a shared cursor. Callers advance
// the cursor only past the key they observed failing, so concurrent failures
// on the same key rotate once.
type KeyPool struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

// NewKeyPool creates a pool from keys, dropping empty entries.
func NewKeyPool(keys ...string) *KeyPool {
	p := &KeyPool{}
	for _, k := range keys {
		if k != "" {
			p.keys = append(p.keys, k)
		}
	}
	return p
}

// Len returns the number of keys.
func (p *KeyPool) Len() int {
	return len(p.keys)
}

// Current returns the cursor position and its key.
func (p *KeyPool) Current() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return 0, ""
	}
	return p.cursor, p.keys[p.cursor]
}

// Advance moves the cursor past from if it still points there and reports
// whether it moved.
func (p *KeyPool) Advance(from int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) < 2 || p.cursor != from {
		return false
	}
	p.cursor = (p.cursor + 1) % len(p.keys)
	return true
}
