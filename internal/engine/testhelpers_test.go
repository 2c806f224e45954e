package engine

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garana/filededup/internal/platform"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFile creates path (and its parents) holding data, with an mtime two
// hours in the past so minimum-age filters admit it.
func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
}

func content(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%251)
	}
	return b
}

func devIno(t *testing.T, path string) platform.DevIno {
	t.Helper()
	m, err := platform.Lstat(path)
	require.NoError(t, err)
	return m.DevIno
}

func nlink(t *testing.T, path string) uint64 {
	t.Helper()
	m, err := platform.Lstat(path)
	require.NoError(t, err)
	return m.Nlink
}

// scratchFiles returns every leftover scratch name under dir.
func scratchFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, _ os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if IsScratchName(path) {
			out = append(out, path)
		}
		return nil
	}))
	return out
}

func baseConfig(roots ...string) Config {
	return Config{
		Roots:  roots,
		Delim:  '\n',
		Logger: discardLogger(),
	}
}

// groupReporter records every reported group.
type groupReporter struct {
	groups [][]string
	// onGroup, when set, runs before the group is recorded.
	onGroup func(paths []string)
}

func (g *groupReporter) WriteGroup(paths []string) error {
	if g.onGroup != nil {
		g.onGroup(paths)
	}
	g.groups = append(g.groups, append([]string(nil), paths...))
	return nil
}

// failingOps delegates to osOps, failing the calls its predicates select.
type failingOps struct {
	osOps
	failLink   func(oldname, newname string) bool
	failRename func(oldpath, newpath string) bool
}

var errInjected = errors.New("injected failure")

func (f failingOps) Link(oldname, newname string) error {
	if f.failLink != nil && f.failLink(oldname, newname) {
		return errInjected
	}
	return f.osOps.Link(oldname, newname)
}

func (f failingOps) Rename(oldpath, newpath string) error {
	if f.failRename != nil && f.failRename(oldpath, newpath) {
		return errInjected
	}
	return f.osOps.Rename(oldpath, newpath)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
