package partition

import (
	"sync"

	"github.com/multimap-io/multimap-go/internal/list"
)

// lockPool lazily allocates one readers-writer lock per list and frees
// it once nobody references it anymore, so partitions with millions
// of rarely-contended keys don't pay for a mutex per key up front.
type lockPool struct {
	mu      sync.Mutex
	entries map[*list.List]*lockEntry
}

type lockEntry struct {
	rw   sync.RWMutex
	refs int
}

func newLockPool() *lockPool {
	return &lockPool{entries: make(map[*list.List]*lockEntry)}
}

func (p *lockPool) acquire(l *list.List) *lockEntry {
	p.mu.Lock()
	e := p.entries[l]
	if e == nil {
		e = &lockEntry{}
		p.entries[l] = e
	}
	e.refs++
	p.mu.Unlock()
	return e
}

func (p *lockPool) release(l *list.List, e *lockEntry) {
	p.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(p.entries, l)
	}
	p.mu.Unlock()
}

// guard holds a single list's lock for the duration of an operation.
type guard struct {
	pool   *lockPool
	l      *list.List
	entry  *lockEntry
	unique bool
}

// Release drops the lock and returns the entry to the pool, freeing it
// if this was the last reference.
func (g *guard) Release() {
	if g.unique {
		g.entry.rw.Unlock()
	} else {
		g.entry.rw.RUnlock()
	}
	g.pool.release(g.l, g.entry)
}

// Shared acquires a shared (reader) lock on l, blocking until
// available.
func (p *lockPool) Shared(l *list.List) *guard {
	e := p.acquire(l)
	e.rw.RLock()
	return &guard{pool: p, l: l, entry: e}
}

// Unique acquires a unique (writer) lock on l, blocking until
// available.
func (p *lockPool) Unique(l *list.List) *guard {
	e := p.acquire(l)
	e.rw.Lock()
	return &guard{pool: p, l: l, entry: e, unique: true}
}

// TryUnique attempts to acquire a unique lock on l without blocking.
func (p *lockPool) TryUnique(l *list.List) (*guard, bool) {
	e := p.acquire(l)
	if !e.rw.TryLock() {
		p.release(l, e)
		return nil, false
	}
	return &guard{pool: p, l: l, entry: e, unique: true}, true
}
