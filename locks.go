package assistant

import "sync"

// TenantLocks is a registry of per-tenant mutexes. Entries are reference
// counted and dropped once no goroutine holds or waits on them.
type TenantLocks struct {
	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

// NewTenantLocks creates an empty registry.
func NewTenantLocks() *TenantLocks {
	return &TenantLocks{locks: make(map[string]*tenantLock)}
}

// Lock acquires the lock for slug and returns its release function.
func (l *TenantLocks) Lock(slug string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*tenantLock)
	}
	tl, ok := l.locks[slug]
	if !ok {
		tl = &tenantLock{}
		l.locks[slug] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			tl.mu.Unlock()
			l.mu.Lock()
			tl.refs--
			if tl.refs == 0 {
				delete(l.locks, slug)
			}
			l.mu.Unlock()
		})
	}
}

// With runs fn while holding the lock for slug.
func (l *TenantLocks) With(slug string, fn func() error) error {
	unlock := l.Lock(slug)
	defer unlock()
	return fn()
}

// Len returns the number of live entries.
func (l *TenantLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
