package partition

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

func openTestPartition(t *testing.T, blockSize int) *Partition {
	t.Helper()
	prefix := filepath.Join(t.TempDir(), "p0")
	p, err := Open(prefix, Options{
		BlockSize:       blockSize,
		BufferSize:      blockSize * 4,
		CreateIfMissing: true,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func values(t *testing.T, p *Partition, key string) [][]byte {
	t.Helper()
	it, release := p.Get([]byte(key))
	defer release()
	var out [][]byte
	for it.Next() {
		out = append(out, append([]byte(nil), it.Value()...))
	}
	if it.Err() != nil {
		t.Fatalf("iterate %q: %v", key, it.Err())
	}
	return out
}

func TestPutGetCloseReopen(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "p0")
	p, err := Open(prefix, Options{BlockSize: 128, BufferSize: 512, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := p.Put([]byte("a"), []byte("2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := p.Put([]byte("b"), []byte("3")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := Open(prefix, Options{BlockSize: 128, BufferSize: 512})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()

	gotA := values(t, p2, "a")
	if len(gotA) != 2 || string(gotA[0]) != "1" || string(gotA[1]) != "2" {
		t.Errorf("a = %v, want [1 2]", gotA)
	}
	gotB := values(t, p2, "b")
	if len(gotB) != 1 || string(gotB[0]) != "3" {
		t.Errorf("b = %v, want [3]", gotB)
	}
	gotC := values(t, p2, "c")
	if len(gotC) != 0 {
		t.Errorf("c = %v, want empty", gotC)
	}
}

func TestRemoveValues(t *testing.T) {
	p := openTestPartition(t, 128)
	defer p.Close()

	for i := 0; i < 1000; i++ {
		if err := p.Put([]byte("k"), []byte(strconv.Itoa(i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}

	count, ok := p.RemoveValues([]byte("k"), func(v []byte) bool {
		n, _ := strconv.Atoi(string(v))
		return n%2 == 0
	})
	if !ok || count != 500 {
		t.Fatalf("RemoveValues: count=%d ok=%v, want 500/true", count, ok)
	}

	got := values(t, p, "k")
	if len(got) != 500 {
		t.Fatalf("remaining = %d, want 500", len(got))
	}
	for _, v := range got {
		n, _ := strconv.Atoi(string(v))
		if n%2 == 0 {
			t.Errorf("value %q should have been removed", v)
		}
	}
}

func TestOversizeKeyRejected(t *testing.T) {
	p := openTestPartition(t, 64)
	defer p.Close()

	big := make([]byte, MaxKeySize+1)
	if err := p.Put(big, []byte("v")); err == nil {
		t.Fatal("expected error for oversize key")
	}
}

func TestOversizeValueRejected(t *testing.T) {
	p := openTestPartition(t, 64)
	defer p.Close()

	big := make([]byte, 64)
	if err := p.Put([]byte("x"), big); err == nil {
		t.Fatal("expected error for oversize value")
	}
	got := values(t, p, "x")
	if len(got) != 0 {
		t.Errorf("x = %v, want empty after rejected put", got)
	}
}

func TestForEachKeySkipsEmpty(t *testing.T) {
	p := openTestPartition(t, 128)
	defer p.Close()

	p.Put([]byte("a"), []byte("1"))
	p.Put([]byte("b"), []byte("2"))
	p.RemoveKey([]byte("b"))

	var seen []string
	p.ForEachKey(func(key []byte) error {
		seen = append(seen, string(key))
		return nil
	})
	if len(seen) != 1 || seen[0] != "a" {
		t.Errorf("ForEachKey visited %v, want [a]", seen)
	}
}

func TestConcurrentReadersDoNotBlockEachOther(t *testing.T) {
	p := openTestPartition(t, 128)
	defer p.Close()

	for i := 0; i < 100; i++ {
		p.Put([]byte("k"), []byte(strconv.Itoa(i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := values(t, p, "k")
			if len(got) != 100 {
				t.Errorf("concurrent read got %d values, want 100", len(got))
			}
		}()
	}
	wg.Wait()
}

func TestReadOnlyCloseDoesNotRewriteFiles(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "p0")
	p, err := Open(prefix, Options{BlockSize: 128, BufferSize: 512, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	keysInfo, err := os.Stat(prefix + ".keys")
	if err != nil {
		t.Fatalf("stat keys: %v", err)
	}
	statsInfo, err := os.Stat(prefix + ".stats")
	if err != nil {
		t.Fatalf("stat stats: %v", err)
	}

	ro, err := Open(prefix, Options{BlockSize: 128, BufferSize: 512, ReadOnly: true})
	if err != nil {
		t.Fatalf("reopen read-only: %v", err)
	}
	if err := ro.Close(); err != nil {
		t.Fatalf("Close read-only: %v", err)
	}

	gotKeys, err := os.Stat(prefix + ".keys")
	if err != nil {
		t.Fatalf("stat keys after: %v", err)
	}
	gotStats, err := os.Stat(prefix + ".stats")
	if err != nil {
		t.Fatalf("stat stats after: %v", err)
	}
	if !gotKeys.ModTime().Equal(keysInfo.ModTime()) {
		t.Error("read-only Close rewrote the keys file")
	}
	if !gotStats.ModTime().Equal(statsInfo.ModTime()) {
		t.Error("read-only Close rewrote the stats file")
	}
}

func TestCloseObservesListSizeStats(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "p0")
	p, err := Open(prefix, Options{BlockSize: 128, BufferSize: 512, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		p.Put([]byte("a"), []byte(strconv.Itoa(i)))
	}
	p.Put([]byte("b"), []byte("0"))
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	snap, err := loadStats(prefix + ".stats")
	if err != nil {
		t.Fatalf("loadStats: %v", err)
	}
	if snap.ListSizeMax != 3 {
		t.Errorf("ListSizeMax = %d, want 3", snap.ListSizeMax)
	}
	if snap.ListSizeMin != 1 {
		t.Errorf("ListSizeMin = %d, want 1", snap.ListSizeMin)
	}
}

func TestReplaceValue(t *testing.T) {
	p := openTestPartition(t, 128)
	defer p.Close()

	p.Put([]byte("k"), []byte("old"))
	replaced, ok := p.ReplaceValue([]byte("k"), func(v []byte) bool {
		return string(v) == "old"
	}, func(v []byte) []byte {
		return []byte("new")
	})
	if !ok || !replaced {
		t.Fatalf("ReplaceValue: replaced=%v ok=%v", replaced, ok)
	}

	got := values(t, p, "k")
	if len(got) != 1 || string(got[0]) != "new" {
		t.Errorf("k = %v, want [new]", got)
	}
}
