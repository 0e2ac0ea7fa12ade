//go:build linux

package store

import (
	"os"

	"golang.org/x/sys/unix"
)

func adviseAccess(f *os.File, pattern AccessPattern) {
	advice := unix.FADV_RANDOM
	if pattern == AccessSequential {
		advice = unix.FADV_SEQUENTIAL
	}
	unix.Fadvise(int(f.Fd()), 0, 0, advice)
}
