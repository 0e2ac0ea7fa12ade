// Package stats implements the fixed-layout, 104-byte Stats record
// persisted alongside every partition's keys and values files, plus
// the in-session atomic Collector that accumulates counters while a
// partition is open.
package stats

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Size is the fixed on-disk length of a Stats record: 12 uint64 fields
// plus the trailing checksum.
const Size = 13 * 8

// Stats is the persisted per-partition counters record.
type Stats struct {
	BlockSize        uint64
	NumBlocks        uint64
	NumKeys          uint64
	NumValuesAdded   uint64
	NumValuesRemoved uint64
	NumValuesUnowned uint64
	KeySizeMin       uint64
	KeySizeMax       uint64
	KeySizeAvg       uint64
	ListSizeMin      uint64
	ListSizeMax      uint64
	ListSizeAvg      uint64
	Checksum         uint64
}

// NumValuesValid reports the count of values not marked as deleted.
func (s Stats) NumValuesValid() uint64 {
	return s.NumValuesAdded - s.NumValuesRemoved
}

// checksum computes the xxhash64 of every field but Checksum itself.
func (s Stats) checksum() uint64 {
	var buf [Size - 8]byte
	s.encodeBody(buf[:])
	return xxhash.Sum64(buf[:])
}

func (s Stats) encodeBody(dst []byte) {
	fields := []uint64{
		s.BlockSize, s.NumBlocks, s.NumKeys,
		s.NumValuesAdded, s.NumValuesRemoved, s.NumValuesUnowned,
		s.KeySizeMin, s.KeySizeMax, s.KeySizeAvg,
		s.ListSizeMin, s.ListSizeMax, s.ListSizeAvg,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint64(dst[i*8:], v)
	}
}

// WriteTo serializes the record, stamping Checksum, to w.
func (s Stats) WriteTo(w io.Writer) (int64, error) {
	s.Checksum = s.checksum()
	var buf [Size]byte
	s.encodeBody(buf[:Size-8])
	binary.LittleEndian.PutUint64(buf[Size-8:], s.Checksum)
	n, err := w.Write(buf[:])
	return int64(n), err
}

// ReadFrom parses a Stats record from r and verifies its checksum.
func ReadFrom(r io.Reader) (Stats, error) {
	var buf [Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Stats{}, fmt.Errorf("stats: read: %w", err)
	}
	return decode(buf[:])
}

func decode(buf []byte) (Stats, error) {
	fields := make([]uint64, 13)
	for i := range fields {
		fields[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	s := Stats{
		BlockSize:        fields[0],
		NumBlocks:        fields[1],
		NumKeys:          fields[2],
		NumValuesAdded:   fields[3],
		NumValuesRemoved: fields[4],
		NumValuesUnowned: fields[5],
		KeySizeMin:       fields[6],
		KeySizeMax:       fields[7],
		KeySizeAvg:       fields[8],
		ListSizeMin:      fields[9],
		ListSizeMax:      fields[10],
		ListSizeAvg:      fields[11],
		Checksum:         fields[12],
	}
	if s.checksum() != s.Checksum {
		return Stats{}, fmt.Errorf("stats: checksum mismatch, corrupt stats record")
	}
	return s, nil
}
