// Package list implements the per-key value sequence: head metadata
// durable in the keys file, plus a single in-memory tail block used as
// a write buffer between flushes.
//
// List itself holds no lock; the per-key readers-writer lock lives in
// a small refcounted pool owned by the partition (see
// internal/partition/lockpool.go), so a bare List is just the data the
// lock protects. Append, Flush, Iterate, RemoveIf and Stats document
// which lock their caller must already hold.
package list

import (
	"encoding/binary"
	"fmt"

	"github.com/multimap-io/multimap-go/internal/block"
	"github.com/multimap-io/multimap-go/internal/store"
	"github.com/multimap-io/multimap-go/internal/varint"
)

// ErrValueTooLarge is returned by Append when a value cannot possibly
// fit in a block of the list's configured size.
var ErrValueTooLarge = fmt.Errorf("list: value exceeds max value size for block size")

// Head is the durable metadata of a list: lifetime counters plus the
// ascending sequence of committed block IDs.
type Head struct {
	NumValuesTotal   uint32
	NumValuesDeleted uint32
	BlockIDs         varint.Sequence
}

// NumValuesValid reports the count of values not tombstoned.
func (h Head) NumValuesValid() uint32 { return h.NumValuesTotal - h.NumValuesDeleted }

// MarshalHead appends the on-disk form of h (u32 total, u32 deleted,
// then a varint.Sequence blob of delta-varint block IDs) to dst and
// returns the result.
func MarshalHead(dst []byte, h Head) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], h.NumValuesTotal)
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], h.NumValuesDeleted)
	dst = append(dst, tmp[:]...)
	return append(dst, h.BlockIDs.Marshal()...)
}

// UnmarshalHead parses a Head from the start of src, returning the
// number of bytes consumed.
func UnmarshalHead(src []byte) (Head, int, error) {
	if len(src) < 8 {
		return Head{}, 0, fmt.Errorf("list: short head buffer")
	}
	total := binary.LittleEndian.Uint32(src)
	deleted := binary.LittleEndian.Uint32(src[4:])
	seq, n, err := varint.Unmarshal(src[8:])
	if err != nil {
		return Head{}, 0, fmt.Errorf("list: head block ids: %w", err)
	}
	return Head{NumValuesTotal: total, NumValuesDeleted: deleted, BlockIDs: *seq}, 8 + n, nil
}

// List is the runtime representation of a key's value sequence: its
// durable head plus an optional not-yet-committed tail block.
type List struct {
	blockSize int
	head      Head
	tail      *block.Block
}

// New constructs an empty list for the given block size.
func New(blockSize int) *List {
	return &List{blockSize: blockSize}
}

// FromHead reconstructs a List from a head read back from the keys
// file, with no in-memory tail: the tail is never persisted.
func FromHead(blockSize int, h Head) *List {
	return &List{blockSize: blockSize, head: h}
}

// Head returns the list's current durable metadata snapshot.
func (l *List) Head() Head { return l.head }

// Empty reports whether the list has no values not tombstoned away,
// whether because none were ever appended or because every value
// appended so far has since been removed.
func (l *List) Empty() bool {
	return l.head.NumValuesValid() == 0
}

// MaxValueSize returns the largest value Append will accept.
func (l *List) MaxValueSize() int { return block.MaxValueSize(l.blockSize) }

// Append adds value to the end of the list, committing the current
// tail to s and starting a fresh one whenever it fills. Caller must
// hold the list's unique lock.
func (l *List) Append(value []byte, s *store.Store) error {
	if len(value) > l.MaxValueSize() {
		return ErrValueTooLarge
	}
	if l.tail == nil {
		l.tail = block.New(l.blockSize + block.FooterSize)
	}
	if !l.tail.TryAdd(value) {
		if l.tail.NumValues() == 0 {
			// MaxValueSize already rejects anything that can't fit an
			// empty block; this only guards against committing a
			// phantom block id if that guarantee is ever violated.
			return ErrValueTooLarge
		}
		if err := l.commitTail(s); err != nil {
			return err
		}
		l.tail = block.New(l.blockSize + block.FooterSize)
		if !l.tail.TryAdd(value) {
			return ErrValueTooLarge
		}
	}
	l.head.NumValuesTotal++
	return nil
}

func (l *List) commitTail(s *store.Store) error {
	l.tail.Finalize()
	id, err := s.Append(l.tail.Bytes())
	if err != nil {
		return fmt.Errorf("list: commit tail: %w", err)
	}
	if !l.head.BlockIDs.Add(id) {
		return fmt.Errorf("list: block id sequence rejected id %d (must be strictly ascending within delta bounds)", id)
	}
	return nil
}

// Flush commits a non-empty tail to s and clears it. Caller must hold
// the list's unique lock.
func (l *List) Flush(s *store.Store) error {
	if l.tail == nil || l.tail.NumValues() == 0 {
		return nil
	}
	if err := l.commitTail(s); err != nil {
		return err
	}
	l.tail = nil
	return nil
}

// Iterator walks a list's values in insertion order, skipping
// tombstoned ones, across its committed blocks then its in-memory
// tail. It snapshots the head's block id sequence at creation.
type Iterator struct {
	s          *store.Store
	blockIDs   []uint32
	nextBlock  int
	cur        *block.Block
	curIter    *block.Iterator
	tail       *block.Block
	usedTail   bool
	valid      uint32 // number of not-yet-consumed valid values
	value      []byte
	err        error
}

// Iterate returns a fresh Iterator over l. Caller must hold at least a
// shared lock on the list for the iterator's lifetime.
func (l *List) Iterate(s *store.Store) *Iterator {
	return &Iterator{
		s:        s,
		blockIDs: l.head.BlockIDs.Unpack(),
		tail:     l.tail,
		valid:    l.head.NumValuesValid(),
	}
}

// Next advances to the next non-tombstoned value, returning false once
// the list is exhausted or a read error occurred (check Err).
func (it *Iterator) Next() bool {
	for {
		if it.curIter == nil {
			if !it.advanceBlock() {
				return false
			}
		}
		if !it.curIter.Next() {
			it.curIter = nil
			continue
		}
		if it.curIter.Tombstoned() {
			continue
		}
		it.value = it.curIter.Value()
		if it.valid > 0 {
			it.valid--
		}
		return true
	}
}

func (it *Iterator) advanceBlock() bool {
	if it.nextBlock < len(it.blockIDs) {
		id := it.blockIDs[it.nextBlock]
		it.nextBlock++
		b := it.cur
		if b == nil {
			b = block.New(it.s.BlockSize())
			it.cur = b
		}
		buf := make([]byte, it.s.BlockSize())
		if err := it.s.Read(id, buf); err != nil {
			it.err = fmt.Errorf("list: iterate: read block %d: %w", id, err)
			return false
		}
		if err := b.Load(buf); err != nil {
			it.err = fmt.Errorf("list: iterate: load block %d: %w", id, err)
			return false
		}
		it.curIter = b.Iterate()
		return true
	}
	if !it.usedTail && it.tail != nil {
		it.usedTail = true
		it.curIter = it.tail.Iterate()
		return true
	}
	return false
}

// Value returns the current value. The returned slice is only valid
// until the next call to Next.
func (it *Iterator) Value() []byte { return it.value }

// Err reports any error encountered reading blocks from the store.
func (it *Iterator) Err() error { return it.err }

// Available returns a residual count of not-yet-consumed valid values;
// it decreases by at least one per successful Next.
func (it *Iterator) Available() uint32 { return it.valid }

// RemoveIf scans the list as Iterate does, tombstoning every value for
// which pred returns true, writing modified committed blocks back via
// s.Replace and modifying the tail in place without rewrite. If
// stopAfterFirst, scanning stops after the first match. Caller must
// hold the list's unique lock.
func (l *List) RemoveIf(pred func([]byte) bool, s *store.Store, stopAfterFirst bool) (int, error) {
	removed := 0
	ids := l.head.BlockIDs.Unpack()
	buf := make([]byte, l.blockSize+block.FooterSize)
	b := block.New(l.blockSize + block.FooterSize)

	for _, id := range ids {
		if err := s.Read(id, buf); err != nil {
			return removed, fmt.Errorf("list: remove_if: read block %d: %w", id, err)
		}
		if err := b.Load(buf); err != nil {
			return removed, fmt.Errorf("list: remove_if: load block %d: %w", id, err)
		}
		changed := false
		it := b.Iterate()
		for it.Next() {
			if it.Tombstoned() {
				continue
			}
			if pred(it.Value()) {
				it.SetTombstone()
				changed = true
				removed++
				l.head.NumValuesDeleted++
				if stopAfterFirst {
					break
				}
			}
		}
		if changed {
			b.Finalize()
			if err := s.Replace(id, b.Bytes()); err != nil {
				return removed, fmt.Errorf("list: remove_if: replace block %d: %w", id, err)
			}
		}
		if stopAfterFirst && changed {
			return removed, nil
		}
	}

	if l.tail != nil {
		it := l.tail.Iterate()
		for it.Next() {
			if it.Tombstoned() {
				continue
			}
			if pred(it.Value()) {
				it.SetTombstone()
				removed++
				l.head.NumValuesDeleted++
				if stopAfterFirst {
					return removed, nil
				}
			}
		}
	}

	return removed, nil
}

// Stats returns the list's current (total, deleted) counters. Caller
// must hold at least a shared lock.
func (l *List) Stats() (total, deleted uint32) {
	return l.head.NumValuesTotal, l.head.NumValuesDeleted
}
