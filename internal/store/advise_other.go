//go:build !linux

package store

import "os"

func adviseAccess(f *os.File, pattern AccessPattern) {
	// posix_fadvise has no portable equivalent on this platform; the Store
	// still functions correctly without the hint.
}
