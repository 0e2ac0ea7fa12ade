package multimap

import (
	"fmt"

	"github.com/multimap-io/multimap-go/internal/errs"
	"github.com/multimap-io/multimap-go/internal/log"
)

// DefaultBlockSize, DefaultNumPartitions and DefaultBufferSize are the
// defaults applied by WithDefaults when a field is left zero.
const (
	DefaultBlockSize     = 512
	DefaultNumPartitions = 23
	DefaultBufferSize    = 1 << 20 // 1 MiB
)

// MajorVersion and MinorVersion are written to multimap.id and checked
// against on Open.
const (
	MajorVersion = 0
	MinorVersion = 1
)

// Options configures Open. Every field is either persisted
// (BlockSize, NumPartitions) or governs how Open behaves.
type Options struct {
	// BlockSize is the fixed size of every block in every partition's
	// Store, chosen once at creation and immutable thereafter. Must be
	// a power of two. Defaults to DefaultBlockSize.
	BlockSize int
	// NumPartitions is the number of shards the key space is split
	// across, chosen once at creation. Defaults to DefaultNumPartitions.
	NumPartitions int
	// BufferSize bounds each partition's in-memory write buffer, in
	// bytes. Defaults to DefaultBufferSize.
	BufferSize int
	// CreateIfMissing creates a new map at the target directory if one
	// does not already exist.
	CreateIfMissing bool
	// ErrorIfExists fails Open if a map already exists at the target
	// directory.
	ErrorIfExists bool
	// ReadOnly opens every partition's Store read-only; Put fails with
	// ErrInvalidArgument. The remove and replace methods have no error
	// result, and Close writes nothing they change back to disk.
	ReadOnly bool
	// Quiet suppresses informational logging (used by the CLI).
	Quiet bool
	// Logger receives structured log output from Map and its
	// partitions. Defaults to the package's StandardLogger.
	Logger log.Logger
	// Comparator, if set, orders values within a list; only consulted
	// by Optimize, which is the sole component allowed to reorder a
	// list's values.
	Comparator func(a, b []byte) int
}

// WithDefaults returns a copy of o with zero fields replaced by their
// package defaults.
func (o Options) WithDefaults() Options {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.NumPartitions == 0 {
		o.NumPartitions = DefaultNumPartitions
	}
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Logger == nil {
		if o.Quiet {
			o.Logger = log.NewStandardLogger(log.WithLevel(log.LevelError))
		} else {
			o.Logger = log.GetDefaultLogger()
		}
	} else if o.Quiet {
		o.Logger.SetLevel(log.LevelError)
	}
	return o
}

// Validate rejects invalid configurations: zero/invalid block size,
// zero partitions, and a buffer smaller than one block.
func (o Options) Validate() error {
	if o.BlockSize <= 0 || o.BlockSize&(o.BlockSize-1) != 0 {
		return fmt.Errorf("%w: block size %d must be a positive power of two", errs.ErrInvalidArgument, o.BlockSize)
	}
	if o.NumPartitions <= 0 {
		return fmt.Errorf("%w: num_partitions %d must be positive", errs.ErrInvalidArgument, o.NumPartitions)
	}
	if o.BufferSize < o.BlockSize {
		return fmt.Errorf("%w: buffer size %d must be at least block size %d", errs.ErrInvalidArgument, o.BufferSize, o.BlockSize)
	}
	return nil
}
