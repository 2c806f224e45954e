//go:build unix && !linux

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetNice lowers the scheduling priority of the current process by n.
func SetNice(n int) error {
	if n <= 0 {
		return nil
	}
	cur, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		return fmt.Errorf("getpriority: %w", err)
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, cur+n); err != nil {
		return fmt.Errorf("setpriority: %w", err)
	}
	return nil
}

// SetIONice is a no-op outside Linux.
func SetIONice(_ IOPriority) error {
	return nil
}
