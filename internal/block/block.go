// Package block implements the fixed-size, length-prefixed value buffer
// that backs every list. Entries here are unsorted and unkeyed: a block
// is simply an append log of opaque values, each carrying a tombstone
// bit folded into its length varint.
//
// A block on disk must be self-describing about how much of its fixed
// extent is real content versus zero padding: without that, a reader
// cannot tell a stored zero-length value from padding, nor where
// padding begins in a partially-filled committed block. A small
// trailing footer resolves this, verified with an xxhash64 checksum of
// the data region.
package block

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"

	"github.com/multimap-io/multimap-go/internal/varint"
)

// FooterSize is the number of trailing bytes of a block reserved for the
// logical content length (4 bytes) and an xxhash64 checksum of the data
// region (8 bytes).
const FooterSize = 4 + 8

// ErrCorrupt is returned by Load when a block's footer checksum does not
// match its data region.
var ErrCorrupt = errors.New("block: checksum mismatch, corrupt block")

// Block is a fixed-size byte buffer holding a packed sequence of
// [varint(len<<1|tombstone), value bytes] records, followed by a footer.
type Block struct {
	data       []byte // full fixed-size buffer, including footer
	dataSize   int    // len(data) - FooterSize
	off        int    // next write offset within the data region
	numValues  int
	numDeleted int
}

// New allocates a zero-filled block of the given total size (including
// footer).
func New(size int) *Block {
	return &Block{data: make([]byte, size), dataSize: size - FooterSize}
}

// Size returns the block's fixed total capacity.
func (b *Block) Size() int { return len(b.data) }

// NextOffset reports the offset of the first unwritten byte in the data
// region.
func (b *Block) NextOffset() int { return b.off }

// NumValues reports how many values (including tombstoned ones) are
// packed into the block.
func (b *Block) NumValues() int { return b.numValues }

// NumTombstoned reports how many of NumValues are tombstoned.
func (b *Block) NumTombstoned() int { return b.numDeleted }

// MaxValueSize returns the largest value that could ever fit a block
// configured with the given nominal size, i.e. the nominal size minus
// the header its own length varint needs. blockSize is the logical
// size callers configure and persist (Options.BlockSize); the physical
// buffer passed to New is blockSize+FooterSize, so the footer never
// eats into this ceiling. A value's header grows past one byte once
// its length reaches 64 (the length is shifted left one bit for the
// tombstone flag before being varint-encoded), so the answer isn't
// simply blockSize-1 for larger block sizes; shrink the candidate by
// the header/size mismatch until it's self-consistent.
func MaxValueSize(blockSize int) int {
	n := blockSize - 1
	if n < 0 {
		return 0
	}
	for {
		var hdr [varint.MaxBytes]byte
		h := varint.PutUint32(hdr[:], uint32(n)<<1)
		if n+h <= blockSize {
			return n
		}
		n -= (n + h) - blockSize
		if n < 0 {
			return 0
		}
	}
}

// TryAdd appends value to the block's data region if it fits, returning
// false (without modifying the block) otherwise.
func (b *Block) TryAdd(value []byte) bool {
	var header [varint.MaxBytes]byte
	n := varint.PutUint32(header[:], uint32(len(value))<<1)
	need := n + len(value)
	if b.off+need > b.dataSize {
		return false
	}
	copy(b.data[b.off:], header[:n])
	copy(b.data[b.off+n:], value)
	b.off += need
	b.numValues++
	return true
}

// Reset clears the block back to empty, zero-filling its storage so it
// can be reused for a fresh tail.
func (b *Block) Reset() {
	for i := range b.data {
		b.data[i] = 0
	}
	b.off = 0
	b.numValues = 0
	b.numDeleted = 0
}

// Finalize writes the footer (content length + checksum) so the block is
// ready to hand to a Store for Append or Replace.
func (b *Block) Finalize() {
	binary.LittleEndian.PutUint32(b.data[b.dataSize:], uint32(b.off))
	sum := xxhash.Sum64(b.data[:b.dataSize])
	binary.LittleEndian.PutUint64(b.data[b.dataSize+4:], sum)
}

// Bytes exposes the block's raw storage, e.g. for Store.Append/Replace.
// Callers must call Finalize first if the block has been mutated.
func (b *Block) Bytes() []byte { return b.data }

// Load replaces the block's contents with raw bytes read from a Store,
// verifies the footer checksum, and rescans the data region to recompute
// numValues/numDeleted.
func (b *Block) Load(data []byte) error {
	if len(b.data) != len(data) {
		b.data = append([]byte(nil), data...)
		b.dataSize = len(data) - FooterSize
	} else {
		copy(b.data, data)
	}

	off := binary.LittleEndian.Uint32(b.data[b.dataSize:])
	wantSum := binary.LittleEndian.Uint64(b.data[b.dataSize+4:])
	gotSum := xxhash.Sum64(b.data[:b.dataSize])
	if gotSum != wantSum {
		return ErrCorrupt
	}
	if int(off) > b.dataSize {
		return ErrCorrupt
	}

	b.off = int(off)
	b.numValues = 0
	b.numDeleted = 0
	pos := 0
	for pos < b.off {
		tag, n := varint.Uint32(b.data[pos:b.off])
		if n == 0 {
			return ErrCorrupt
		}
		valLen := int(tag >> 1)
		tombstoned := tag&1 != 0
		pos += n + valLen
		if pos > b.off {
			return ErrCorrupt
		}
		b.numValues++
		if tombstoned {
			b.numDeleted++
		}
	}
	return nil
}

// Iterator walks the packed records of a block in order.
type Iterator struct {
	b          *Block
	pos        int
	valStart   int
	valLen     int
	tombstoned bool
}

// Iterate returns a fresh Iterator positioned before the first record.
func (b *Block) Iterate() *Iterator {
	return &Iterator{b: b}
}

// Next advances to the next record, returning false once the block's
// recorded entries are exhausted.
func (it *Iterator) Next() bool {
	if it.pos >= it.b.off {
		return false
	}
	tag, n := varint.Uint32(it.b.data[it.pos:it.b.off])
	if n == 0 {
		return false
	}
	it.valLen = int(tag >> 1)
	it.tombstoned = tag&1 != 0
	it.valStart = it.pos + n
	it.pos = it.valStart + it.valLen
	return true
}

// Value returns the current record's value bytes. The slice is a view
// into the block's storage and is only valid until the iterator advances.
func (it *Iterator) Value() []byte {
	return it.b.data[it.valStart : it.valStart+it.valLen]
}

// Tombstoned reports whether the current record is marked deleted.
func (it *Iterator) Tombstoned() bool { return it.tombstoned }

// SetTombstone flips the tombstone bit of the current record in place.
// The block's footer must be refreshed with Finalize before it is
// written back to a Store.
func (it *Iterator) SetTombstone() {
	if it.tombstoned {
		return
	}
	var header [varint.MaxBytes]byte
	n := varint.PutUint32(header[:], uint32(it.valLen)<<1|1)
	headerStart := it.valStart - n
	copy(it.b.data[headerStart:it.valStart], header[:n])
	it.tombstoned = true
	it.b.numDeleted++
}
