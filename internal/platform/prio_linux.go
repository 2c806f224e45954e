//go:build linux

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const ioprioWhoProcess = 1

// SetNice lowers the scheduling priority of the current process by n.
func SetNice(n int) error {
	if n <= 0 {
		return nil
	}
	cur, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		return fmt.Errorf("getpriority: %w", err)
	}
	// The raw syscall returns 20-nice.
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, 20-cur+n); err != nil {
		return fmt.Errorf("setpriority: %w", err)
	}
	return nil
}

// SetIONice applies an I/O scheduling priority to the current process.
func SetIONice(p IOPriority) error {
	if p <= 0 {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_IOPRIO_SET, ioprioWhoProcess, 0, uintptr(p))
	if errno != 0 {
		return fmt.Errorf("ioprio_set: %w", errno)
	}
	return nil
}
