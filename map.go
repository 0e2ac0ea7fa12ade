// Package multimap implements an embeddable, persistent, thread-safe
// 1-to-N key-value store: each key maps to an append-ordered list of
// opaque value byte strings. Map is the top-level handle: a fixed
// array of partitions selected by key hash, a persistent multimap.id,
// and an exclusive directory lock.
package multimap

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/multimap-io/multimap-go/internal/errs"
	"github.com/multimap-io/multimap-go/internal/list"
	"github.com/multimap-io/multimap-go/internal/log"
	"github.com/multimap-io/multimap-go/internal/partition"
	"github.com/multimap-io/multimap-go/internal/stats"
)

// Map is the top-level handle on a directory of partitions.
type Map struct {
	dir        string
	opts       Options
	partitions []*partition.Partition
	lock       *flock.Flock
	logger     log.Logger
}

// Open opens (or creates) a Map rooted at dir.
func Open(dir string, opts Options) (*Map, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", errs.ErrIO, dir, err)
	}

	lockPath := filepath.Join(dir, "multimap.lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: flock %s: %v", errs.ErrIO, lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", errs.ErrLocked, dir)
	}

	m := &Map{dir: dir, opts: opts, lock: fl, logger: opts.Logger}

	if err := m.openOrCreateID(); err != nil {
		fl.Unlock()
		return nil, err
	}

	m.partitions = make([]*partition.Partition, m.opts.NumPartitions)
	for i := 0; i < m.opts.NumPartitions; i++ {
		prefix := filepath.Join(dir, fmt.Sprintf("multimap.%d", i))
		p, err := partition.Open(prefix, partition.Options{
			BlockSize:       m.opts.BlockSize,
			BufferSize:      m.opts.BufferSize,
			CreateIfMissing: m.opts.CreateIfMissing,
			ReadOnly:        m.opts.ReadOnly,
			Logger:          m.opts.Logger,
		})
		if err != nil {
			m.closePartitions(i)
			fl.Unlock()
			return nil, fmt.Errorf("open partition %d: %w", i, err)
		}
		m.partitions[i] = p
	}

	return m, nil
}

func (m *Map) openOrCreateID() error {
	idPath := filepath.Join(m.dir, "multimap.id")
	_, err := os.Stat(idPath)
	switch {
	case err == nil:
		if m.opts.ErrorIfExists {
			return fmt.Errorf("%w: %s", errs.ErrAlreadyExists, m.dir)
		}
		id, err := readIDFile(idPath)
		if err != nil {
			return err
		}
		if id.Major != MajorVersion || id.Minor > MinorVersion {
			return fmt.Errorf("%w: on-disk version %d.%d, library supports %d.%d",
				errs.ErrVersionMismatch, id.Major, id.Minor, MajorVersion, MinorVersion)
		}
		m.opts.BlockSize = int(id.BlockSize)
		m.opts.NumPartitions = int(id.NumPartitions)
		return nil
	case os.IsNotExist(err):
		if !m.opts.CreateIfMissing {
			return fmt.Errorf("%w: %s", errs.ErrNotFound, m.dir)
		}
		return writeIDFile(idPath, idFile{
			BlockSize:     uint64(m.opts.BlockSize),
			NumPartitions: uint64(m.opts.NumPartitions),
			Major:         MajorVersion,
			Minor:         MinorVersion,
		})
	default:
		return fmt.Errorf("%w: stat %s: %v", errs.ErrIO, idPath, err)
	}
}

func (m *Map) closePartitions(n int) {
	for i := 0; i < n; i++ {
		m.partitions[i].Close()
	}
}

// Close closes every partition and releases the directory lock.
func (m *Map) Close() error {
	var firstErr error
	for _, p := range m.partitions {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: unlock: %v", errs.ErrIO, err)
	}
	return firstErr
}

// partitionIndex dispatches key to exactly one partition by
// fnv1a32(key) mod len(partitions).
func partitionIndex(key []byte, numPartitions int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32()) % numPartitions
}

func (m *Map) partitionFor(key []byte) *partition.Partition {
	return m.partitions[partitionIndex(key, len(m.partitions))]
}

// Put appends value to the end of key's list, creating the list if
// this is the first value under key.
func (m *Map) Put(key, value []byte) error {
	return m.partitionFor(key).Put(key, value)
}

// Get returns every value currently stored under key, in append
// order, skipping tombstoned ones. A missing key yields an empty,
// non-nil slice and a nil error.
func (m *Map) Get(key []byte) ([][]byte, error) {
	p := m.partitionFor(key)
	it, release := p.Get(key)
	defer release()

	out := [][]byte{}
	for it.Next() {
		out = append(out, append([]byte(nil), it.Value()...))
	}
	return out, it.Err()
}

// ForEachValue invokes fn for every value under key in order, without
// copying each value (the slice fn receives is a view valid only for
// the duration of the call). Iteration stops and fn's error propagates
// if fn returns a non-nil error.
func (m *Map) ForEachValue(key []byte, fn func(value []byte) error) error {
	p := m.partitionFor(key)
	it, release := p.Get(key)
	defer release()

	for it.Next() {
		if err := fn(it.Value()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Contains reports whether key has at least one non-tombstoned value.
func (m *Map) Contains(key []byte) (bool, error) {
	p := m.partitionFor(key)
	it, release := p.Get(key)
	defer release()
	has := it.Next()
	return has, it.Err()
}

// Remove tombstones every value under key, equivalent to
// RemoveValues(key, func([]byte) bool { return true }).
func (m *Map) Remove(key []byte) bool {
	return m.partitionFor(key).RemoveKey(key)
}

// RemoveKeys applies pred to every key across every partition and
// tombstones every value of the keys it matches, returning the count
// of keys that became empty.
func (m *Map) RemoveKeys(pred func(key []byte) bool) int {
	total := 0
	for _, p := range m.partitions {
		total += p.RemoveKeys(pred)
	}
	return total
}

// RemoveValue tombstones the first value under key for which pred
// returns true.
func (m *Map) RemoveValue(key []byte, pred func(value []byte) bool) (removed bool, keyExists bool) {
	return m.partitionFor(key).RemoveValue(key, pred)
}

// RemoveValues tombstones every value under key for which pred returns
// true, returning the count removed.
func (m *Map) RemoveValues(key []byte, pred func(value []byte) bool) (count int, keyExists bool) {
	return m.partitionFor(key).RemoveValues(key, pred)
}

// ReplaceValue replaces the first value under key matched by match
// with fn(oldValue). Values are never rewritten in place: this
// tombstones the old value and appends the new one.
func (m *Map) ReplaceValue(key []byte, match func(value []byte) bool, fn func(old []byte) []byte) (replaced bool, keyExists bool) {
	return m.partitionFor(key).ReplaceValue(key, match, fn)
}

// ReplaceAll applies ReplaceValue's tombstone-then-append to every
// value under key matched by match.
func (m *Map) ReplaceAll(key []byte, match func(value []byte) bool, fn func(old []byte) []byte) (count int, keyExists bool) {
	return m.partitionFor(key).ReplaceAll(key, match, fn)
}

// ForEachKey invokes fn for every non-empty key across every
// partition, partition by partition, in partition order.
func (m *Map) ForEachKey(fn func(key []byte) error) error {
	for _, p := range m.partitions {
		if err := p.ForEachKey(fn); err != nil {
			return err
		}
	}
	return nil
}

// ForEachEntry invokes fn with every key and an iterator over its
// values, across every partition in order. It is not an atomic
// snapshot of the whole map: each list is snapshotted independently as
// it is visited.
func (m *Map) ForEachEntry(fn func(key []byte, it *list.Iterator) error) error {
	for _, p := range m.partitions {
		if err := p.ForEachEntry(fn); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the stats record for the partition owning key.
func (m *Map) Stats(key []byte) stats.Stats {
	return m.partitionFor(key).Stats()
}

// TotalStats sums every partition's stats record.
func (m *Map) TotalStats() stats.Stats {
	var total stats.Stats
	var keySizeSum, listSizeSum uint64
	for _, p := range m.partitions {
		s := p.Stats()
		total.BlockSize = s.BlockSize
		total.NumBlocks += s.NumBlocks
		total.NumKeys += s.NumKeys
		total.NumValuesAdded += s.NumValuesAdded
		total.NumValuesRemoved += s.NumValuesRemoved
		total.NumValuesUnowned += s.NumValuesUnowned
		total.KeySizeMin = minNonZero(total.KeySizeMin, s.KeySizeMin)
		total.KeySizeMax = max64(total.KeySizeMax, s.KeySizeMax)
		total.ListSizeMin = minNonZero(total.ListSizeMin, s.ListSizeMin)
		total.ListSizeMax = max64(total.ListSizeMax, s.ListSizeMax)
		keySizeSum += s.KeySizeAvg * s.NumKeys
		listSizeSum += s.ListSizeAvg * s.NumKeys
	}
	if total.NumKeys > 0 {
		total.KeySizeAvg = keySizeSum / total.NumKeys
		total.ListSizeAvg = listSizeSum / total.NumKeys
	}
	return total
}

// NumPartitions reports the number of partitions this Map was created
// or opened with.
func (m *Map) NumPartitions() int { return len(m.partitions) }

// BlockSize reports the fixed block size this Map was created with.
func (m *Map) BlockSize() int { return m.opts.BlockSize }

func minNonZero(a, b uint64) uint64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if b < a {
		return b
	}
	return a
}

func max64(a, b uint64) uint64 {
	if b > a {
		return b
	}
	return a
}
