package multimap

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestOptimizeReshapesPartitionsAndBlockSize(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	dstDir := filepath.Join(root, "dst")

	src, err := Open(srcDir, Options{BlockSize: 64, NumPartitions: 2, CreateIfMissing: true})
	if err != nil {
		t.Fatalf("Open src: %v", err)
	}
	src.Put([]byte("a"), []byte("1"))
	src.Put([]byte("a"), []byte("2"))
	src.Put([]byte("b"), []byte("3"))
	if err := src.Close(); err != nil {
		t.Fatalf("Close src: %v", err)
	}

	if err := Optimize(srcDir, dstDir, Options{BlockSize: 256, NumPartitions: 4}); err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	dst, err := Open(dstDir, Options{})
	if err != nil {
		t.Fatalf("Open dst: %v", err)
	}
	defer dst.Close()

	if dst.BlockSize() != 256 || dst.NumPartitions() != 4 {
		t.Fatalf("dst shape = (%d,%d), want (256,4)", dst.BlockSize(), dst.NumPartitions())
	}

	got, err := dst.Get([]byte("a"))
	if err != nil || len(got) != 2 || !bytes.Equal(got[0], []byte("1")) || !bytes.Equal(got[1], []byte("2")) {
		t.Errorf("a = %v err=%v, want [1 2]", got, err)
	}
}

func TestOptimizeRefusesExistingDestination(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	dstDir := filepath.Join(root, "dst")

	src, err := Open(srcDir, Options{CreateIfMissing: true})
	if err != nil {
		t.Fatalf("Open src: %v", err)
	}
	src.Close()

	dst, err := Open(dstDir, Options{CreateIfMissing: true})
	if err != nil {
		t.Fatalf("Open dst: %v", err)
	}
	dst.Close()

	if err := Optimize(srcDir, dstDir, Options{}); err == nil {
		t.Fatal("expected Optimize to refuse an existing destination")
	}
}
