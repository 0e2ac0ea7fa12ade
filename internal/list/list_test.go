package list

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/multimap-io/multimap-go/internal/block"
	"github.com/multimap-io/multimap-go/internal/store"
)

// openStore opens a Store sized to back lists built with New(blockSize):
// the Store's physical slot size is the nominal size plus the footer
// List adds itself, matching how partition.Open wires the two together.
func openStore(t *testing.T, blockSize int) *store.Store {
	t.Helper()
	physical := blockSize + block.FooterSize
	path := filepath.Join(t.TempDir(), "values")
	s, err := store.Open(path, physical, physical*4, false)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func collect(t *testing.T, it *Iterator) [][]byte {
	t.Helper()
	var out [][]byte
	for it.Next() {
		out = append(out, append([]byte(nil), it.Value()...))
	}
	if it.Err() != nil {
		t.Fatalf("iterate: %v", it.Err())
	}
	return out
}

func TestAppendIterateOrder(t *testing.T) {
	s := openStore(t, 128)
	l := New(128)

	want := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
	for _, v := range want {
		if err := l.Append(v, s); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := collect(t, l.Iterate(s))
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if string(got[i]) != string(want[i]) {
			t.Errorf("value %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAppendAcrossBlocks(t *testing.T) {
	s := openStore(t, 64)
	l := New(64)

	for i := 0; i < 100; i++ {
		if err := l.Append([]byte(strconv.Itoa(i)), s); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := l.Flush(s); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := collect(t, l.Iterate(s))
	if len(got) != 100 {
		t.Fatalf("got %d values, want 100", len(got))
	}
	for i := 0; i < 100; i++ {
		if string(got[i]) != strconv.Itoa(i) {
			t.Errorf("value %d = %q, want %q", i, got[i], strconv.Itoa(i))
		}
	}
	if l.head.BlockIDs.Len() < 2 {
		t.Errorf("committed %d block ids, want at least 2", l.head.BlockIDs.Len())
	}
}

func TestRemoveIfSkipsTombstones(t *testing.T) {
	s := openStore(t, 64)
	l := New(64)

	for i := 0; i < 10; i++ {
		if err := l.Append([]byte(strconv.Itoa(i)), s); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	removed, err := l.RemoveIf(func(v []byte) bool {
		n, _ := strconv.Atoi(string(v))
		return n%2 == 0
	}, s, false)
	if err != nil {
		t.Fatalf("RemoveIf: %v", err)
	}
	if removed != 5 {
		t.Fatalf("removed = %d, want 5", removed)
	}

	got := collect(t, l.Iterate(s))
	if len(got) != 5 {
		t.Fatalf("got %d remaining values, want 5", len(got))
	}
	for _, v := range got {
		n, _ := strconv.Atoi(string(v))
		if n%2 == 0 {
			t.Errorf("value %q should have been removed", v)
		}
	}

	total, deleted := l.Stats()
	if total != 10 || deleted != 5 {
		t.Errorf("stats = (%d,%d), want (10,5)", total, deleted)
	}
}

func TestAppendOversizeValueRejected(t *testing.T) {
	s := openStore(t, 64)
	l := New(64)

	big := make([]byte, l.MaxValueSize()+1)
	if err := l.Append(big, s); err != ErrValueTooLarge {
		t.Fatalf("Append oversize: got %v, want ErrValueTooLarge", err)
	}
	if !l.Empty() {
		t.Error("list should remain empty after a rejected append")
	}
}

func TestEmptyReportsTrueOnceEveryValueIsTombstoned(t *testing.T) {
	s := openStore(t, 64)
	l := New(64)
	for i := 0; i < 3; i++ {
		if err := l.Append([]byte(strconv.Itoa(i)), s); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if l.Empty() {
		t.Fatal("list with live values should not be empty")
	}

	removed, err := l.RemoveIf(func([]byte) bool { return true }, s, false)
	if err != nil {
		t.Fatalf("RemoveIf: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	if !l.Empty() {
		t.Error("list with every value tombstoned should be empty, even though it was once appended to")
	}
}

func TestMaxValueSizeAccountsForTwoByteVarintHeader(t *testing.T) {
	// At blockSize 128 a candidate of 127 tags to 254, which needs a
	// 2-byte varint header once the tag reaches 128 (value length 64).
	// The true ceiling must leave room for that header.
	max := block.MaxValueSize(128)
	if max >= 127 {
		t.Fatalf("MaxValueSize(128) = %d, want < 127 to account for the 2-byte header", max)
	}

	s := openStore(t, 128)
	l := New(128)

	fits := make([]byte, max)
	if err := l.Append(fits, s); err != nil {
		t.Fatalf("Append at MaxValueSize: %v", err)
	}

	l2 := New(128)
	tooBig := make([]byte, max+1)
	before := l2.Head()
	if err := l2.Append(tooBig, s); err != ErrValueTooLarge {
		t.Fatalf("Append one byte over MaxValueSize: got %v, want ErrValueTooLarge", err)
	}
	after := l2.Head()
	if after.NumValuesTotal != before.NumValuesTotal || after.BlockIDs.Len() != before.BlockIDs.Len() {
		t.Error("rejected oversize append must leave the list's head unchanged")
	}
}

func TestHeadMarshalRoundTrip(t *testing.T) {
	s := openStore(t, 64)
	l := New(64)
	for i := 0; i < 5; i++ {
		l.Append([]byte(strconv.Itoa(i)), s)
	}
	l.Flush(s)

	buf := MarshalHead(nil, l.Head())
	got, n, err := UnmarshalHead(buf)
	if err != nil {
		t.Fatalf("UnmarshalHead: %v", err)
	}
	if n != len(buf) {
		t.Errorf("consumed %d bytes, want %d", n, len(buf))
	}
	if got.NumValuesTotal != l.head.NumValuesTotal {
		t.Errorf("NumValuesTotal = %d, want %d", got.NumValuesTotal, l.head.NumValuesTotal)
	}
	if got.BlockIDs.Len() != l.head.BlockIDs.Len() {
		t.Errorf("BlockIDs.Len() = %d, want %d", got.BlockIDs.Len(), l.head.BlockIDs.Len())
	}
}
