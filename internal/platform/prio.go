package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// I/O scheduling classes understood by ioprio_set(2).
const (
	IOClassNone = iota
	IOClassRealtime
	IOClassBestEffort
	IOClassIdle
)

const ioprioClassShift = 13

// IOPriority is an encoded ioprio value (class << 13 | data).
type IOPriority int

// Class returns the scheduling class.
func (p IOPriority) Class() int { return int(p) >> ioprioClassShift }

// Data returns the priority level within the class.
func (p IOPriority) Data() int { return int(p) & (1<<ioprioClassShift - 1) }

func newIOPriority(class, data int) IOPriority {
	return IOPriority(class<<ioprioClassShift | data)
}

// ErrInvalidIONice is returned by ParseIONice for malformed specs.
var ErrInvalidIONice = errors.New("invalid ionice spec")

// ParseIONice parses "none", "idle", or CLASS[,DATA] where CLASS is
// rt|realtime or be|best-effort and DATA is 0..7 (default 4).
func ParseIONice(spec string) (IOPriority, error) {
	switch spec {
	case "none":
		return newIOPriority(IOClassNone, 0), nil
	case "idle":
		return newIOPriority(IOClassIdle, 7), nil
	}

	class, dataStr, hasData := strings.Cut(spec, ",")
	data := 4
	if hasData {
		n, err := strconv.Atoi(dataStr)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidIONice, spec)
		}
		if n < 0 || n > 7 {
			return 0, fmt.Errorf("%w: data must be between 0 and 7", ErrInvalidIONice)
		}
		data = n
	}

	switch class {
	case "rt", "realtime":
		return newIOPriority(IOClassRealtime, data), nil
	case "be", "best-effort":
		return newIOPriority(IOClassBestEffort, data), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidIONice, spec)
	}
}

// JoinCgroup moves the current process into the cgroup directory dir by
// writing its pid to dir/tasks.
func JoinCgroup(dir string) error {
	path := filepath.Join(dir, "tasks")
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open cgroup %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		return fmt.Errorf("add pid %d to cgroup %s: %w", os.Getpid(), dir, err)
	}
	return nil
}
