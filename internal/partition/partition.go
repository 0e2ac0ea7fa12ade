// Package partition implements a single shard of a Map: an in-memory
// key table backed by one arena, bound to one on-disk Store of values,
// with a lazily-allocated lock per list.
package partition

import (
	"fmt"
	"os"
	"sync"

	"github.com/multimap-io/multimap-go/internal/arena"
	"github.com/multimap-io/multimap-go/internal/block"
	"github.com/multimap-io/multimap-go/internal/errs"
	"github.com/multimap-io/multimap-go/internal/list"
	"github.com/multimap-io/multimap-go/internal/log"
	"github.com/multimap-io/multimap-go/internal/stats"
	"github.com/multimap-io/multimap-go/internal/store"
)

// Options configures a single partition's Open call. It mirrors the
// fields of the top-level Map Options that are relevant below the Map
// layer.
type Options struct {
	BlockSize       int
	BufferSize      int
	CreateIfMissing bool
	ErrorIfExists   bool
	ReadOnly        bool
	Logger          log.Logger
}

// Partition binds an in-memory key table to one Store of values plus
// the stats counters tracked across the table's lifetime.
type Partition struct {
	mu    sync.RWMutex // key-table lock: shared for lookup, unique for insertion
	keys  map[string]*list.List
	arena *arena.Arena
	store *store.Store
	stats *stats.Collector
	locks *lockPool

	prefix    string
	blockSize int
	readOnly  bool
	logger    log.Logger
	closed    bool
}

// Open opens the partition rooted at prefix (i.e. files
// prefix+".keys", ".values", ".stats"), creating them if
// opts.CreateIfMissing and none exist.
func Open(prefix string, opts Options) (*Partition, error) {
	if opts.Logger == nil {
		opts.Logger = log.GetDefaultLogger()
	}

	keysPath := prefix + ".keys"
	_, err := os.Stat(keysPath)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("partition: stat %s: %w", keysPath, err)
	}

	if exists && opts.ErrorIfExists {
		return nil, fmt.Errorf("%w: %s", errs.ErrAlreadyExists, prefix)
	}
	if !exists {
		if !opts.CreateIfMissing {
			return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, prefix)
		}
		if err := createEmptyKeys(keysPath); err != nil {
			return nil, err
		}
	}

	var (
		keys map[string]*list.List
		a    *arena.Arena
	)
	if exists {
		keys, a, err = loadKeys(keysPath, opts.BlockSize)
		if err != nil {
			return nil, err
		}
	} else {
		keys = make(map[string]*list.List)
		a = arena.New()
	}

	s, err := store.Open(prefix+".values", opts.BlockSize+block.FooterSize, opts.BufferSize, opts.ReadOnly)
	if err != nil {
		return nil, err
	}

	collector := stats.NewCollector()
	if snap, err := loadStats(prefix + ".stats"); err == nil {
		collector.Restore(snap)
	}

	return &Partition{
		keys:      keys,
		arena:     a,
		store:     s,
		stats:     collector,
		locks:     newLockPool(),
		prefix:    prefix,
		blockSize: opts.BlockSize,
		readOnly:  opts.ReadOnly,
		logger:    opts.Logger,
	}, nil
}

func loadStats(path string) (stats.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return stats.Stats{}, err
	}
	defer f.Close()
	return stats.ReadFrom(f)
}

// Close flushes every list it can acquire a unique lock on without
// blocking, writes the keys file, persists stats, and closes the
// Store. Lists it cannot lock are logged and written with their
// current head without flushing their tail, so values still in such a
// list's tail are not persisted. On a partition
// opened ReadOnly, Close only closes the Store: there is nothing to
// flush and the keys/stats files are left untouched.
func (p *Partition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	if p.readOnly {
		err := p.store.Close()
		p.arena.Reset()
		p.keys = nil
		p.closed = true
		return err
	}

	entries := make([]keyEntry, 0, len(p.keys))
	for k, l := range p.keys {
		g, ok := p.locks.TryUnique(l)
		if !ok {
			p.logger.WithField("key", k).Warn("partition: skipping locked list on close")
			entries = append(entries, keyEntry{key: []byte(k), head: l.Head()})
			continue
		}
		if err := l.Flush(p.store); err != nil {
			g.Release()
			return fmt.Errorf("partition: flush list %q: %w", k, err)
		}
		total, deleted := l.Stats()
		p.stats.ObserveListSize(uint64(total - deleted))
		entries = append(entries, keyEntry{key: []byte(k), head: l.Head()})
		g.Release()
	}

	if err := saveKeys(p.prefix+".keys", entries); err != nil {
		return err
	}

	if err := p.saveStats(); err != nil {
		return err
	}

	if err := p.store.Close(); err != nil {
		return err
	}

	p.arena.Reset()
	p.keys = nil
	p.closed = true
	return nil
}

func (p *Partition) saveStats() error {
	f, err := os.OpenFile(p.prefix+".stats", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("partition: create stats file: %w", err)
	}
	defer f.Close()

	snap := p.stats.Snapshot(uint64(p.blockSize), uint64(p.store.NumBlocksOnDisk()))
	if _, err := snap.WriteTo(f); err != nil {
		return fmt.Errorf("partition: write stats file: %w", err)
	}
	return nil
}

// Put appends value to key's list, creating the list if this is the
// first value for key.
func (p *Partition) Put(key, value []byte) error {
	if p.readOnly {
		return fmt.Errorf("%w: partition %s is read-only", errs.ErrInvalidArgument, p.prefix)
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("%w: key size %d exceeds %d", errs.ErrInvalidArgument, len(key), MaxKeySize)
	}
	l := p.getOrCreate(key)
	g := p.locks.Unique(l)
	defer g.Release()

	if err := l.Append(value, p.store); err != nil {
		if err == list.ErrValueTooLarge {
			return fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
		}
		return err
	}
	p.stats.TrackValuesAdded(1)
	return nil
}

// Get returns an iterator over key's values, or an iterator over no
// values if key is absent; a missing key is not an error. The caller
// must call the returned release function to drop the list's shared
// lock.
func (p *Partition) Get(key []byte) (*list.Iterator, func()) {
	p.mu.RLock()
	l, ok := p.keys[string(key)]
	p.mu.RUnlock()
	if !ok {
		return emptyIterator(), func() {}
	}
	g := p.locks.Shared(l)
	return l.Iterate(p.store), g.Release
}

func emptyIterator() *list.Iterator {
	return list.New(1).Iterate(nil)
}

func (p *Partition) getOrCreate(key []byte) *list.List {
	p.mu.RLock()
	l, ok := p.keys[string(key)]
	p.mu.RUnlock()
	if ok {
		return l
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok = p.keys[string(key)]; ok {
		return l
	}
	owned := p.arena.Allocate(len(key))
	copy(owned, key)
	l = list.New(p.blockSize)
	p.keys[string(owned)] = l
	p.stats.TrackNewKey(len(key))
	return l
}

// RemoveKey drops every value under key by tombstoning them all,
// reporting whether key was present and non-empty.
func (p *Partition) RemoveKey(key []byte) bool {
	removed, ok := p.RemoveValues(key, func([]byte) bool { return true })
	return ok && removed > 0
}

// RemoveKeys applies RemoveKey to every key for which pred returns
// true, returning the count of keys whose lists became empty.
func (p *Partition) RemoveKeys(pred func(key []byte) bool) int {
	p.mu.RLock()
	keys := make([][]byte, 0, len(p.keys))
	for k := range p.keys {
		if pred([]byte(k)) {
			keys = append(keys, []byte(k))
		}
	}
	p.mu.RUnlock()

	count := 0
	for _, k := range keys {
		if p.RemoveKey(k) {
			count++
		}
	}
	return count
}

// RemoveValue tombstones the first value under key for which pred
// returns true. ok reports whether key exists at all.
func (p *Partition) RemoveValue(key []byte, pred func([]byte) bool) (removed bool, ok bool) {
	n, exists := p.removeMatching(key, pred, true)
	return n > 0, exists
}

// RemoveValues tombstones every value under key for which pred returns
// true, returning the count removed and whether key exists.
func (p *Partition) RemoveValues(key []byte, pred func([]byte) bool) (count int, ok bool) {
	return p.removeMatching(key, pred, false)
}

func (p *Partition) removeMatching(key []byte, pred func([]byte) bool, stopAfterFirst bool) (int, bool) {
	p.mu.RLock()
	l, ok := p.keys[string(key)]
	p.mu.RUnlock()
	if !ok {
		return 0, false
	}

	g := p.locks.Unique(l)
	defer g.Release()
	n, err := l.RemoveIf(pred, p.store, stopAfterFirst)
	if err != nil {
		p.logger.WithField("error", err).Error("partition: remove_if failed")
		return 0, true
	}
	if n > 0 {
		p.stats.TrackValuesRemoved(uint64(n))
	}
	return n, true
}

// ReplaceValue tombstones the first value under key matched by match
// and appends fn(oldValue) in its place. Replacement is always
// tombstone + append, never an in-place rewrite.
func (p *Partition) ReplaceValue(key []byte, match func([]byte) bool, fn func([]byte) []byte) (bool, bool) {
	n, ok := p.replaceMatching(key, match, fn, true)
	return n > 0, ok
}

// ReplaceAll applies ReplaceValue's tombstone-then-append to every
// value under key matched by match.
func (p *Partition) ReplaceAll(key []byte, match func([]byte) bool, fn func([]byte) []byte) (int, bool) {
	n, ok := p.replaceMatching(key, match, fn, false)
	return n, ok
}

func (p *Partition) replaceMatching(key []byte, match func([]byte) bool, fn func([]byte) []byte, stopAfterFirst bool) (int, bool) {
	p.mu.RLock()
	l, ok := p.keys[string(key)]
	p.mu.RUnlock()
	if !ok {
		return 0, false
	}

	g := p.locks.Unique(l)
	defer g.Release()

	var pending [][]byte
	collect := func(v []byte) bool {
		if match(v) {
			pending = append(pending, fn(append([]byte(nil), v...)))
			return true
		}
		return false
	}

	n, err := l.RemoveIf(collect, p.store, stopAfterFirst)
	if err != nil {
		p.logger.WithField("error", err).Error("partition: replace failed")
		return 0, true
	}
	for _, nv := range pending {
		if err := l.Append(nv, p.store); err != nil {
			p.logger.WithField("error", err).Error("partition: replace append failed")
		}
	}
	if n > 0 {
		p.stats.TrackValuesRemoved(uint64(n))
		p.stats.TrackValuesAdded(uint64(len(pending)))
	}
	return n, true
}

// ForEachKey invokes fn for every key whose list is non-empty at the
// moment it is visited.
func (p *Partition) ForEachKey(fn func(key []byte) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for k, l := range p.keys {
		g := p.locks.Shared(l)
		empty := l.Empty()
		g.Release()
		if empty {
			continue
		}
		if err := fn([]byte(k)); err != nil {
			return err
		}
	}
	return nil
}

// ForEachEntry invokes fn with every key and a fresh iterator over its
// values, advising the Store for sequential access around the scan.
func (p *Partition) ForEachEntry(fn func(key []byte, it *list.Iterator) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	p.store.AdviseAccess(store.AccessSequential)
	defer p.store.AdviseAccess(store.AccessRandom)

	for k, l := range p.keys {
		g := p.locks.Shared(l)
		it := l.Iterate(p.store)
		err := fn([]byte(k), it)
		g.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a fresh snapshot of the partition's counters.
func (p *Partition) Stats() stats.Stats {
	return p.stats.Snapshot(uint64(p.blockSize), uint64(p.store.NumBlocksOnDisk()))
}

// KeysPath, ValuesPath, StatsPath report the partition's on-disk file
// paths.
func (p *Partition) KeysPath() string   { return p.prefix + ".keys" }
func (p *Partition) ValuesPath() string { return p.prefix + ".values" }
func (p *Partition) StatsPath() string  { return p.prefix + ".stats" }

// Prefix reports the partition's file-name prefix (directory + base
// name, without the .keys/.values/.stats suffix).
func (p *Partition) Prefix() string { return p.prefix }
