// Package report writes the list of duplicate groups found by a run.
//
// Every member path is written followed by the separator, base first. Each
// group after the first is preceded by one extra separator, so with a
// newline separator groups are split by blank lines.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Writer is a group report. It is not safe for concurrent use.
type Writer struct {
	w       *bufio.Writer
	closers []io.Closer
	sep     byte
	started bool
}

// NewWriter writes groups to w using sep ('\n' or 0) as the separator.
func NewWriter(w io.Writer, sep byte) *Writer {
	return &Writer{w: bufio.NewWriter(w), sep: sep}
}

// Create opens path for writing, truncating it. A path ending in ".zst" is
// zstd-compressed.
func Create(path string, sep byte) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	if !strings.HasSuffix(path, ".zst") {
		rw := NewWriter(f, sep)
		rw.closers = []io.Closer{f}
		return rw, nil
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd: %w", err)
	}
	rw := NewWriter(enc, sep)
	rw.closers = []io.Closer{enc, f}
	return rw, nil
}

// WriteGroup writes one group, base first.
func (w *Writer) WriteGroup(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if w.started {
		if err := w.w.WriteByte(w.sep); err != nil {
			return err
		}
	}
	w.started = true
	for _, p := range paths {
		if _, err := w.w.WriteString(p); err != nil {
			return err
		}
		if err := w.w.WriteByte(w.sep); err != nil {
			return err
		}
	}
	// Groups are flushed whole.
	return w.w.Flush()
}

// Close flushes buffered output and closes any file or encoder opened by
// Create.
func (w *Writer) Close() error {
	err := w.w.Flush()
	for _, c := range w.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	w.closers = nil
	return err
}
