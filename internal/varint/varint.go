// Package varint implements a LEB128 varint codec and a delta-compressed
// ascending uint32 sequence, used by list heads to pack committed block
// IDs compactly.
package varint

// MaxDelta bounds the gap Sequence.Add will accept between two
// consecutive values: 2^28 - 1.
const MaxDelta = 1<<28 - 1

// MaxBytes is the largest number of bytes a 32-bit varint can occupy.
const MaxBytes = 5

// PutUint32 writes v to dst as a little-endian, high-bit-continuation
// varint and returns the number of bytes written. dst must have room for
// at least MaxBytes bytes.
func PutUint32(dst []byte, v uint32) int {
	i := 0
	for v >= 0x80 {
		dst[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	dst[i] = byte(v)
	return i + 1
}

// Uint32 decodes a varint from the start of src, returning the value and
// the number of bytes consumed. It returns (0, 0) if src does not contain
// a complete varint.
func Uint32(src []byte) (uint32, int) {
	var v uint32
	var shift uint
	for i := 0; i < len(src) && i < MaxBytes; i++ {
		b := src[i]
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// Sequence stores an ascending run of uint32 values as delta-encoded
// varints. The last raw value is kept in a struct field so Add can
// compute the next delta without rescanning the buffer; it is not part
// of the buffer, Marshal does not write it, and Unmarshal recomputes it
// by scanning.
type Sequence struct {
	buf  []byte
	last uint32
	n    int
}

// Add appends v to the sequence. It returns false, leaving the sequence
// unchanged, if v is not strictly greater than the previous value or if
// the delta exceeds MaxDelta.
func (s *Sequence) Add(v uint32) bool {
	if s.n > 0 {
		if v <= s.last {
			return false
		}
		delta := v - s.last
		if delta > MaxDelta {
			return false
		}
		s.appendVarint(delta)
	} else {
		s.appendVarint(v)
	}
	s.last = v
	s.n++
	return true
}

func (s *Sequence) appendVarint(v uint32) {
	var tmp [MaxBytes]byte
	n := PutUint32(tmp[:], v)
	s.buf = append(s.buf, tmp[:n]...)
}

// Len reports the number of values stored.
func (s *Sequence) Len() int { return s.n }

// Empty reports whether the sequence holds no values.
func (s *Sequence) Empty() bool { return s.n == 0 }

// Last returns the most recently added value and whether any value exists.
func (s *Sequence) Last() (uint32, bool) { return s.last, s.n > 0 }

// Unpack materializes the ascending sequence of values.
func (s *Sequence) Unpack() []uint32 {
	out := make([]uint32, 0, s.n)
	var prev uint32
	buf := s.buf
	for i := 0; i < s.n; i++ {
		delta, consumed := Uint32(buf)
		buf = buf[consumed:]
		if i == 0 {
			prev = delta
		} else {
			prev += delta
		}
		out = append(out, prev)
	}
	return out
}

// Bytes returns the raw delta-varint buffer, as persisted inside a list
// head's blob_size-prefixed field.
func (s *Sequence) Bytes() []byte { return s.buf }

// Marshal serializes the sequence to the exact on-disk form used by the
// keys file: u32 byte length of the buffer, then the delta-varint
// buffer.
func (s *Sequence) Marshal() []byte {
	out := make([]byte, 4+len(s.buf))
	putU32(out, uint32(len(s.buf)))
	copy(out[4:], s.buf)
	return out
}

// Unmarshal parses the on-disk form produced by Marshal, rebuilding n and
// last by scanning the buffer once.
func Unmarshal(data []byte) (*Sequence, int, error) {
	if len(data) < 4 {
		return nil, 0, errShortBuffer
	}
	blobSize := getU32(data)
	end := 4 + int(blobSize)
	if end > len(data) {
		return nil, 0, errShortBuffer
	}
	buf := append([]byte(nil), data[4:end]...)

	s := &Sequence{buf: buf}
	rest := buf
	var prev uint32
	for len(rest) > 0 {
		delta, consumed := Uint32(rest)
		if consumed == 0 {
			return nil, 0, errCorrupt
		}
		rest = rest[consumed:]
		if s.n == 0 {
			prev = delta
		} else {
			prev += delta
		}
		s.last = prev
		s.n++
	}
	return s, end, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
