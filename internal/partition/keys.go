package partition

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/multimap-io/multimap-go/internal/arena"
	"github.com/multimap-io/multimap-go/internal/list"
)

// MaxKeySize is the largest key accepted, bounded by the 16-bit
// key_size field on disk.
const MaxKeySize = 65535

// loadKeys reads a {P}.keys file into a fresh key table, copying every
// key's bytes into a (also freshly created) arena.
func loadKeys(path string, blockSize int) (map[string]*list.List, *arena.Arena, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("partition: open keys file %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var numKeys uint32
	if err := binary.Read(r, binary.LittleEndian, &numKeys); err != nil {
		return nil, nil, fmt.Errorf("partition: read key count from %s: %w", path, err)
	}

	a := arena.New()
	table := make(map[string]*list.List, numKeys)

	for i := uint32(0); i < numKeys; i++ {
		var keySize uint16
		if err := binary.Read(r, binary.LittleEndian, &keySize); err != nil {
			return nil, nil, fmt.Errorf("partition: read key %d size from %s: %w", i, path, err)
		}
		buf := a.Allocate(int(keySize))
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, nil, fmt.Errorf("partition: read key %d bytes from %s: %w", i, path, err)
		}

		headBuf, err := readHead(r)
		if err != nil {
			return nil, nil, fmt.Errorf("partition: read key %d head from %s: %w", i, path, err)
		}
		head, _, err := list.UnmarshalHead(headBuf)
		if err != nil {
			return nil, nil, fmt.Errorf("partition: decode key %d head from %s: %w", i, path, err)
		}

		table[string(buf)] = list.FromHead(blockSize, head)
	}

	return table, a, nil
}

// readHead reads one list_head record: u32 total, u32 deleted, u32
// blob_size, blob_size bytes.
func readHead(r io.Reader) ([]byte, error) {
	var fixed [8]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}
	var blobSizeBuf [4]byte
	if _, err := io.ReadFull(r, blobSizeBuf[:]); err != nil {
		return nil, err
	}
	blobSize := binary.LittleEndian.Uint32(blobSizeBuf[:])
	blob := make([]byte, blobSize)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 12+len(blob))
	out = append(out, fixed[:]...)
	out = append(out, blobSizeBuf[:]...)
	out = append(out, blob...)
	return out, nil
}

// createEmptyKeys writes a zero-key keys file at path.
func createEmptyKeys(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("partition: create keys file %s: %w", path, err)
	}
	defer f.Close()
	var zero [4]byte
	if _, err := f.Write(zero[:]); err != nil {
		return fmt.Errorf("partition: write empty keys file %s: %w", path, err)
	}
	return nil
}

// keyEntry pairs a key's bytes with its list's head, the unit saveKeys
// writes.
type keyEntry struct {
	key  []byte
	head list.Head
}

// saveKeys writes entries to a temp file beside path and atomically
// renames it over path, so a reader never observes a half-written
// keys file.
func saveKeys(path string, entries []keyEntry) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("partition: create %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(entries)))
	if _, err := w.Write(hdr[:]); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("partition: write key count to %s: %w", tmp, err)
	}

	for _, e := range entries {
		var sizeBuf [2]byte
		binary.LittleEndian.PutUint16(sizeBuf[:], uint16(len(e.key)))
		if _, err := w.Write(sizeBuf[:]); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("partition: write key size to %s: %w", tmp, err)
		}
		if _, err := w.Write(e.key); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("partition: write key bytes to %s: %w", tmp, err)
		}
		headBuf := list.MarshalHead(nil, e.head)
		if _, err := w.Write(headBuf); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("partition: write list head to %s: %w", tmp, err)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("partition: flush %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("partition: sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("partition: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("partition: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}
