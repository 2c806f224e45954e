package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garana/filededup/internal/filter"
)

func collectScan(t *testing.T, cfg ScannerConfig) ([]string, []error) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	found, errs := NewScanner(cfg).Scan(t.Context())

	var paths []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range found {
			paths = append(paths, c.Path)
		}
	}()

	var errList []error
	for err := range errs {
		errList = append(errList, err)
	}
	<-done
	sort.Strings(paths)
	return paths, errList
}

func TestScanner_NestedDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "root.txt"), []byte("root"))
	writeFile(t, filepath.Join(root, "sub1", "s1.txt"), []byte("s1"))
	writeFile(t, filepath.Join(root, "sub1", "sub2", "s2.txt"), []byte("s2"))

	paths, errs := collectScan(t, ScannerConfig{Roots: []string{root}, Workers: 2})
	require.Empty(t, errs)
	assert.Equal(t, []string{
		filepath.Join(root, "root.txt"),
		filepath.Join(root, "sub1", "s1.txt"),
		filepath.Join(root, "sub1", "sub2", "s2.txt"),
	}, paths)
}

func TestScanner_SkipsSymlinksAndSpecialFiles(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	writeFile(t, target, []byte("data"))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.txt")))

	other := t.TempDir()
	writeFile(t, filepath.Join(other, "hidden.txt"), []byte("data"))
	require.NoError(t, os.Symlink(other, filepath.Join(root, "linkdir")))

	paths, errs := collectScan(t, ScannerConfig{Roots: []string{root}})
	require.Empty(t, errs)
	assert.Equal(t, []string{target}, paths)
}

func TestScanner_SymlinkRootIgnored(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	writeFile(t, filepath.Join(real, "f"), []byte("data"))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	paths, errs := collectScan(t, ScannerConfig{Roots: []string{link}})
	require.Empty(t, errs)
	assert.Empty(t, paths)
}

func TestScanner_FileRoot(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "single")
	writeFile(t, f, []byte("data"))

	paths, errs := collectScan(t, ScannerConfig{Roots: []string{f}})
	require.Empty(t, errs)
	assert.Equal(t, []string{f}, paths)
}

func TestScanner_ExcludedDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep", "a"), []byte("a"))
	writeFile(t, filepath.Join(root, ".git", "objects", "b"), []byte("b"))
	writeFile(t, filepath.Join(root, "x.log"), []byte("c"))

	f := filter.NewChain()
	require.NoError(t, f.AddExclude(".git/"))
	require.NoError(t, f.AddExclude("*.log"))

	paths, errs := collectScan(t, ScannerConfig{Roots: []string{root}, Filter: f})
	require.Empty(t, errs)
	assert.Equal(t, []string{filepath.Join(root, "keep", "a")}, paths)
}

func TestScanner_SkipsScratchFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), []byte("a"))
	writeFile(t, filepath.Join(root, "a.123.1700000000.42.0badf00d"+ScratchSuffix), []byte("a"))

	paths, errs := collectScan(t, ScannerConfig{Roots: []string{root}})
	require.Empty(t, errs)
	assert.Equal(t, []string{filepath.Join(root, "a")}, paths)
}

func TestScanner_MissingRootReportsError(t *testing.T) {
	paths, errs := collectScan(t, ScannerConfig{Roots: []string{filepath.Join(t.TempDir(), "nope")}})
	assert.Empty(t, paths)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], os.ErrNotExist)
}

func TestReadPaths(t *testing.T) {
	tests := []struct {
		name  string
		input string
		delim byte
		want  []string
	}{
		{"newline", "a\nb\n", '\n', []string{"a", "b"}},
		{"unterminated tail", "a\nb", '\n', []string{"a", "b"}},
		{"empty entries", "\na\n\n\nb\n", '\n', []string{"a", "b"}},
		{"nul keeps newlines", "x\ny\x00z\x00", 0, []string{"x\ny", "z"}},
		{"empty input", "", '\n', nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := ReadPaths(t.Context(), strings.NewReader(tt.input), tt.delim, func(p string) error {
				got = append(got, p)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadPaths_CallbackErrorStops(t *testing.T) {
	var got []string
	err := ReadPaths(t.Context(), strings.NewReader("a\nb\nc\n"), '\n', func(p string) error {
		got = append(got, p)
		if p == "b" {
			return os.ErrInvalid
		}
		return nil
	})
	require.ErrorIs(t, err, os.ErrInvalid)
	assert.Equal(t, []string{"a", "b"}, got)
}
