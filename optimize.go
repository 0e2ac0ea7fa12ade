package multimap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/multimap-io/multimap-go/internal/errs"
	"github.com/multimap-io/multimap-go/internal/list"
)

// Optimize reads every partition of the Map at srcDir and writes a
// fresh Map at dstDir, possibly with a different BlockSize or
// NumPartitions (dstOpts), optionally sorting each list's values with
// dstOpts.Comparator before re-appending them. Optimize refuses to run
// if dstDir already holds a map rather than merge or overwrite it.
func Optimize(srcDir, dstDir string, dstOpts Options) error {
	if _, err := os.Stat(filepath.Join(dstDir, "multimap.id")); err == nil {
		return fmt.Errorf("%w: optimize destination %s already contains a map", errs.ErrAlreadyExists, dstDir)
	}

	src, err := Open(srcDir, Options{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("optimize: open source %s: %w", srcDir, err)
	}
	defer src.Close()

	dstOpts.CreateIfMissing = true
	dstOpts.ErrorIfExists = true
	dst, err := Open(dstDir, dstOpts)
	if err != nil {
		return fmt.Errorf("optimize: open destination %s: %w", dstDir, err)
	}
	defer dst.Close()

	comparator := dstOpts.Comparator
	err = src.ForEachEntry(func(key []byte, it *list.Iterator) error {
		var vals [][]byte
		for it.Next() {
			vals = append(vals, append([]byte(nil), it.Value()...))
		}
		if err := it.Err(); err != nil {
			return fmt.Errorf("optimize: iterate key %q: %w", key, err)
		}
		if comparator != nil {
			sort.SliceStable(vals, func(i, j int) bool { return comparator(vals[i], vals[j]) < 0 })
		}
		for _, v := range vals {
			if err := dst.Put(key, v); err != nil {
				return fmt.Errorf("optimize: put key %q: %w", key, err)
			}
		}
		return nil
	})
	return err
}
