//go:build linux || darwin || freebsd || netbsd || openbsd

package alloc

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

const mmapSupported = true

// MmapSource serves segments from anonymous private mappings. Sizes are
// rounded up to the page size.
type MmapSource struct{}

func (MmapSource) Acquire(size uint64) ([]byte, error) {
	page := uint64(unix.Getpagesize())
	n := (size + page - 1) / page * page
	if n == 0 || n > math.MaxInt {
		return nil, fmt.Errorf("alloc: cannot map %d bytes", size)
	}
	mem, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("alloc: mmap %d bytes: %w", n, err)
	}
	return mem, nil
}

func (MmapSource) Release(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	err := unix.Munmap(mem)
	if errors.Is(err, unix.EINVAL) {
		return nil
	}
	return err
}
