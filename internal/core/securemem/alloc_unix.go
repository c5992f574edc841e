//go:build unix

package securemem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func allocate(n int) ([]byte, bool, error) {
	page := os.Getpagesize()
	size := ((n + page - 1) / page) * page
	if size == 0 {
		size = page
	}

	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, false, fmt.Errorf("mmap secret region: %w", err)
	}

	// RLIMIT_MEMLOCK is often small in containers; an unlocked region is
	// still zeroed on release.
	locked := unix.Mlock(region) == nil
	return region, locked, nil
}

func release(region []byte, locked bool) {
	if locked {
		_ = unix.Munlock(region)
	}
	_ = unix.Munmap(region)
}
