package varint

import (
	"reflect"
	"testing"
)

func TestPutGetUint32(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 16383, 16384, 1 << 20, 1<<32 - 1}
	for _, v := range cases {
		var buf [MaxBytes]byte
		n := PutUint32(buf[:], v)
		got, consumed := Uint32(buf[:n])
		if consumed != n || got != v {
			t.Fatalf("roundtrip failed for %d: got=%d consumed=%d want consumed=%d", v, got, consumed, n)
		}
	}
}

func TestSequenceAddRejectsNonAscending(t *testing.T) {
	var s Sequence
	if !s.Add(5) {
		t.Fatal("expected first add to succeed")
	}
	if s.Add(5) {
		t.Fatal("expected equal value to be rejected")
	}
	if s.Add(3) {
		t.Fatal("expected descending value to be rejected")
	}
	if !s.Add(6) {
		t.Fatal("expected ascending value to succeed")
	}
}

func TestSequenceAddRejectsLargeDelta(t *testing.T) {
	var s Sequence
	s.Add(0)
	if s.Add(MaxDelta + 1) {
		t.Fatal("expected delta over MaxDelta to be rejected")
	}
	if !s.Add(MaxDelta) {
		t.Fatal("expected delta at MaxDelta to succeed")
	}
}

func TestSequenceUnpack(t *testing.T) {
	values := []uint32{1, 2, 10, 11, 1000, 1_000_000}
	var s Sequence
	for _, v := range values {
		if !s.Add(v) {
			t.Fatalf("add(%d) failed", v)
		}
	}
	got := s.Unpack()
	if !reflect.DeepEqual(got, values) {
		t.Fatalf("unpack mismatch: got %v want %v", got, values)
	}
}

func TestSequenceMarshalUnmarshal(t *testing.T) {
	values := []uint32{5, 6, 7, 500, 50000}
	var s Sequence
	for _, v := range values {
		s.Add(v)
	}
	data := s.Marshal()

	got, consumed, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if consumed != len(data) {
		t.Fatalf("consumed %d, want %d", consumed, len(data))
	}
	if !reflect.DeepEqual(got.Unpack(), values) {
		t.Fatalf("unpack mismatch after round trip: got %v want %v", got.Unpack(), values)
	}
	if last, ok := got.Last(); !ok || last != values[len(values)-1] {
		t.Fatalf("last = %d, %v; want %d, true", last, ok, values[len(values)-1])
	}
}

func TestSequenceEmpty(t *testing.T) {
	var s Sequence
	if !s.Empty() {
		t.Fatal("new sequence should be empty")
	}
	if len(s.Unpack()) != 0 {
		t.Fatal("unpack of empty sequence should be empty")
	}
}
