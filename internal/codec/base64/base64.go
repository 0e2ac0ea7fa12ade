// Package base64 implements a whitespace-delimited Base64 text codec
// for importing and exporting a Map: one line per key,
// "b64(key) b64(v1) b64(v2) ...". It consumes the core's public API
// only, never its internals.
package base64

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	multimap "github.com/multimap-io/multimap-go"
	"github.com/multimap-io/multimap-go/internal/list"
)

// Import reads whitespace-delimited Base64 tokens from r, one line per
// key ("key v1 v2 ..."), and Puts each value under its key in m. A
// malformed token fails fast, with the line number in the error.
func Import(m *multimap.Map, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		tokens := strings.Fields(text)

		key, err := base64.StdEncoding.DecodeString(tokens[0])
		if err != nil {
			return fmt.Errorf("base64 import: line %d: decode key %q: %w", line, tokens[0], err)
		}
		for _, tok := range tokens[1:] {
			value, err := base64.StdEncoding.DecodeString(tok)
			if err != nil {
				return fmt.Errorf("base64 import: line %d: decode value %q: %w", line, tok, err)
			}
			if err := m.Put(key, value); err != nil {
				return fmt.Errorf("base64 import: line %d: put: %w", line, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("base64 import: scan: %w", err)
	}
	return nil
}

// ImportZstd wraps r in a zstd decompressor before importing, for
// files produced by ExportZstd.
func ImportZstd(m *multimap.Map, r io.Reader) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("base64 import: zstd: %w", err)
	}
	defer dec.Close()
	return Import(m, dec)
}

// Export walks every partition of m in order, writing one line per
// non-empty key to w.
func Export(m *multimap.Map, w io.Writer) error {
	bw := bufio.NewWriter(w)
	var line []byte
	err := m.ForEachEntry(func(key []byte, it *list.Iterator) error {
		line = line[:0]
		line = append(line, base64.StdEncoding.EncodeToString(key)...)
		n := 0
		for it.Next() {
			line = append(line, ' ')
			line = append(line, base64.StdEncoding.EncodeToString(it.Value())...)
			n++
		}
		if err := it.Err(); err != nil {
			return fmt.Errorf("base64 export: key %q: %w", key, err)
		}
		if n == 0 {
			return nil
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return fmt.Errorf("base64 export: write: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// ExportZstd wraps w in a zstd compressor while exporting, trading the
// plain codec's line-oriented readability for a smaller file.
func ExportZstd(m *multimap.Map, w io.Writer) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("base64 export: zstd: %w", err)
	}
	if err := Export(m, enc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
