package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordClear(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Record("/d/a.scratch", "/d/a", LinkHard))
	require.NoError(t, j.Record("/d/b.scratch", "/d/b", LinkSymbolic))

	pending, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "/d/a", pending[0].Original)
	assert.Equal(t, LinkHard, pending[0].Mode)
	assert.Equal(t, LinkSymbolic, pending[1].Mode)
	assert.False(t, pending[0].Created.IsZero())

	require.NoError(t, j.Clear("/d/a.scratch"))
	pending, err = j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "/d/b.scratch", pending[0].Scratch)
}

func TestJournal_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Record("s", "o", LinkHard))
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, path, j.Path())

	pending, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "s", pending[0].Scratch)
}

func TestRecover(t *testing.T) {
	dir := t.TempDir()
	j := openTestJournal(t)

	// Original gone: the scratch holds the only copy.
	restoreOrig := filepath.Join(dir, "restore")
	restoreScratch := restoreOrig + ".1.2.3.aaaaaaaa" + ScratchSuffix
	writeFile(t, restoreScratch, []byte("payload"))
	require.NoError(t, j.Record(restoreScratch, restoreOrig, LinkHard))

	// Both present: the scratch is redundant.
	removeOrig := filepath.Join(dir, "remove")
	removeScratch := removeOrig + ".1.2.3.bbbbbbbb" + ScratchSuffix
	writeFile(t, removeOrig, []byte("payload"))
	writeFile(t, removeScratch, []byte("payload"))
	require.NoError(t, j.Record(removeScratch, removeOrig, LinkHard))

	// Scratch gone: nothing to repair.
	clearOrig := filepath.Join(dir, "clear")
	require.NoError(t, j.Record(clearOrig+".1.2.3.cccccccc"+ScratchSuffix, clearOrig, LinkSymbolic))

	dry, err := Recover(t.Context(), j, true, discardLogger())
	require.NoError(t, err)
	require.Len(t, dry, 3)
	assert.FileExists(t, restoreScratch)
	assert.FileExists(t, removeScratch)
	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 3, "dry run keeps the journal")

	out, err := Recover(t.Context(), j, false, discardLogger())
	require.NoError(t, err)
	actions := map[string]RecoverAction{}
	for _, o := range out {
		require.NoError(t, o.Err)
		actions[o.Entry.Original] = o.Action
	}
	assert.Equal(t, map[string]RecoverAction{
		restoreOrig: Restored,
		removeOrig:  Removed,
		clearOrig:   Cleared,
	}, actions)

	got, err := os.ReadFile(restoreOrig)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	assert.NoFileExists(t, restoreScratch)
	assert.NoFileExists(t, removeScratch)
	assert.FileExists(t, removeOrig)

	pending, err = j.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRecoverActionString(t *testing.T) {
	assert.Equal(t, "restored", Restored.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", RecoverAction(0).String())
}
