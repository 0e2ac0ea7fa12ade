package varint

import "errors"

var (
	errShortBuffer = errors.New("varint: buffer too short")
	errCorrupt     = errors.New("varint: corrupt delta sequence")
)
