package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinkMode(t *testing.T) {
	tests := []struct {
		in   string
		want LinkMode
	}{
		{"hard", LinkHard},
		{"hardlink", LinkHard},
		{"HARD", LinkHard},
		{"symbolic", LinkSymbolic},
		{"symlink", LinkSymbolic},
		{"soft", LinkSymbolic},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLinkMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLinkMode("reflink")
	require.ErrorIs(t, err, ErrConfig)
}

func TestLinkModeString(t *testing.T) {
	assert.Equal(t, "hard", LinkHard.String())
	assert.Equal(t, "symbolic", LinkSymbolic.String())
	assert.Equal(t, "LinkMode(7)", LinkMode(7).String())
}

func TestHardLinker(t *testing.T) {
	dir := t.TempDir()
	base, cand := filepath.Join(dir, "base"), filepath.Join(dir, "cand")
	writeFile(t, base, []byte("same"))
	writeFile(t, cand, []byte("same"))
	scratch := ScratchName(cand, os.Getpid(), time.Now())

	require.NoError(t, hardLinker{fs: osOps{}}.link(base, cand, scratch))
	assert.Equal(t, devIno(t, base), devIno(t, cand))
	assert.NoFileExists(t, scratch)
}

func TestHardLinker_RemoveFailureCleansScratch(t *testing.T) {
	dir := t.TempDir()
	base, cand := filepath.Join(dir, "base"), filepath.Join(dir, "cand")
	writeFile(t, base, []byte("same"))
	writeFile(t, cand, []byte("same"))
	before := devIno(t, cand)
	scratch := ScratchName(cand, os.Getpid(), time.Now())

	fs := removeFailOps{fail: cand}
	err := hardLinker{fs: fs}.link(base, cand, scratch)
	require.ErrorIs(t, err, errInjected)

	var de *danglingError
	assert.NotErrorAs(t, err, &de)
	assert.NoFileExists(t, scratch)
	assert.Equal(t, before, devIno(t, cand))
}

func TestSymLinker(t *testing.T) {
	dir := t.TempDir()
	base, cand := filepath.Join(dir, "base"), filepath.Join(dir, "cand")
	writeFile(t, base, []byte("same"))
	writeFile(t, cand, []byte("same"))
	scratch := ScratchName(cand, os.Getpid(), time.Now())

	require.NoError(t, symLinker{fs: osOps{}}.link(base, cand, scratch))
	target, err := os.Readlink(cand)
	require.NoError(t, err)
	assert.Equal(t, base, target)
	assert.NoFileExists(t, scratch)
}

func TestSymLinker_SymlinkFailureRestores(t *testing.T) {
	dir := t.TempDir()
	base, cand := filepath.Join(dir, "base"), filepath.Join(dir, "cand")
	writeFile(t, base, []byte("same"))
	writeFile(t, cand, []byte("same"))
	before := devIno(t, cand)
	scratch := ScratchName(cand, os.Getpid(), time.Now())

	err := symLinker{fs: symlinkFailOps{}}.link(base, cand, scratch)
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, before, devIno(t, cand))
	assert.NoFileExists(t, scratch)
}

func TestDryRunOpsTouchNothing(t *testing.T) {
	dir := t.TempDir()
	base, cand := filepath.Join(dir, "base"), filepath.Join(dir, "cand")
	writeFile(t, base, []byte("same"))
	writeFile(t, cand, []byte("same"))
	before := devIno(t, cand)

	for _, mode := range []LinkMode{LinkHard, LinkSymbolic} {
		l, err := newLinker(mode, loggedOps{next: dryRunOps{}, log: discardLogger()})
		require.NoError(t, err)
		require.NoError(t, l.link(base, cand, ScratchName(cand, 1, time.Now())))
	}
	assert.Equal(t, before, devIno(t, cand))
	assert.Empty(t, scratchFiles(t, dir))
}

type removeFailOps struct {
	osOps
	fail string
}

func (o removeFailOps) Remove(name string) error {
	if name == o.fail {
		return errInjected
	}
	return o.osOps.Remove(name)
}

type symlinkFailOps struct{ osOps }

func (symlinkFailOps) Symlink(_, _ string) error { return errInjected }
