package multimap

import "github.com/multimap-io/multimap-go/internal/errs"

// Sentinel error kinds, re-exported from the internal errs package so
// callers can use errors.Is(err, multimap.ErrNotFound) without
// reaching into an internal import path.
var (
	ErrNotFound        = errs.ErrNotFound
	ErrAlreadyExists   = errs.ErrAlreadyExists
	ErrLocked          = errs.ErrLocked
	ErrVersionMismatch = errs.ErrVersionMismatch
	ErrInvalidArgument = errs.ErrInvalidArgument
	ErrIO              = errs.ErrIO
	ErrCorrupt         = errs.ErrCorrupt
)
