// Package errs defines the sentinel error kinds shared by the
// partition and map layers, so both can participate in the same
// errors.Is chain without an import cycle back to the root package.
package errs

import "errors"

var (
	// ErrNotFound is returned when a map or partition is asked to open
	// without CreateIfMissing and nothing exists at the given path.
	ErrNotFound = errors.New("multimap: not found")
	// ErrAlreadyExists is returned when ErrorIfExists is set and a map
	// already exists at the given path.
	ErrAlreadyExists = errors.New("multimap: already exists")
	// ErrLocked is returned when the directory lock is already held by
	// another process.
	ErrLocked = errors.New("multimap: directory is locked by another process")
	// ErrVersionMismatch is returned when an existing multimap.id's
	// major version differs, or its minor version is newer than this
	// library's.
	ErrVersionMismatch = errors.New("multimap: version mismatch")
	// ErrInvalidArgument is returned for oversize keys/values and
	// invalid Options (zero block size, zero partitions, ...).
	ErrInvalidArgument = errors.New("multimap: invalid argument")
	// ErrIO wraps an underlying read/write/rename/flock failure.
	ErrIO = errors.New("multimap: io error")
	// ErrCorrupt is returned for a malformed keys/id/stats file.
	ErrCorrupt = errors.New("multimap: corrupt data")
)
