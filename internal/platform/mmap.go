//go:build unix

package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PageSize returns the system memory page size.
func PageSize() int {
	return unix.Getpagesize()
}

// RoundToPage rounds n up to the next multiple of the page size. The second
// return value reports whether n had to be adjusted.
func RoundToPage(n int) (int, bool) {
	ps := PageSize()
	if n <= 0 {
		return ps, true
	}
	if n%ps == 0 {
		return n, false
	}
	return (n/ps + 1) * ps, true
}

// MapRange maps length bytes of f starting at offset read-only. offset must
// be page aligned. The caller must release the mapping with Unmap.
func MapRange(f *os.File, offset int64, length int) ([]byte, error) {
	//nolint:gosec // G115: fd values are small non-negative integers
	b, err := unix.Mmap(int(f.Fd()), offset, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s at %d: %w", f.Name(), offset, err)
	}
	return b, nil
}

// Unmap releases a mapping returned by MapRange.
func Unmap(b []byte) error {
	return unix.Munmap(b)
}
