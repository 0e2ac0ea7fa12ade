package multimap

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/multimap-io/multimap-go/internal/errs"
)

// idFileSize is the fixed 32-byte layout of multimap.id: four
// little-endian u64 fields.
const idFileSize = 32

type idFile struct {
	BlockSize     uint64
	NumPartitions uint64
	Major         uint64
	Minor         uint64
}

func readIDFile(path string) (idFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return idFile{}, fmt.Errorf("%w: open %s: %v", errs.ErrIO, path, err)
	}
	defer f.Close()

	var buf [idFileSize]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return idFile{}, fmt.Errorf("%w: read %s: %v", errs.ErrCorrupt, path, err)
	}

	return idFile{
		BlockSize:     binary.LittleEndian.Uint64(buf[0:8]),
		NumPartitions: binary.LittleEndian.Uint64(buf[8:16]),
		Major:         binary.LittleEndian.Uint64(buf[16:24]),
		Minor:         binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

func writeIDFile(path string, id idFile) error {
	var buf [idFileSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], id.BlockSize)
	binary.LittleEndian.PutUint64(buf[8:16], id.NumPartitions)
	binary.LittleEndian.PutUint64(buf[16:24], id.Major)
	binary.LittleEndian.PutUint64(buf[24:32], id.Minor)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", errs.ErrIO, path, err)
	}
	defer f.Close()
	if _, err := f.Write(buf[:]); err != nil {
		return fmt.Errorf("%w: write %s: %v", errs.ErrIO, path, err)
	}
	return nil
}
