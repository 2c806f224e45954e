package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garana/filededup/internal/event"
)

func TestVerify_Hardlinks(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base")
	linked := filepath.Join(dir, "linked")
	copied := filepath.Join(dir, "copied")
	writeFile(t, base, []byte("x"))
	require.NoError(t, os.Link(base, linked))
	writeFile(t, copied, []byte("x"))

	events := make(chan event.Event, 16)
	res := Verify(t.Context(), VerifyConfig{Link: LinkHard, Workers: 2, Events: events}, []mergedPair{
		{base: base, candidate: linked},
		{base: base, candidate: copied},
		{base: base, candidate: filepath.Join(dir, "missing")},
	})

	assert.Equal(t, int64(1), res.Verified)
	assert.Equal(t, int64(2), res.Failed)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, copied, res.Errors[0].Path)
	assert.ErrorIs(t, res.Errors[0].Err, errNotSameInode)
	assert.ErrorIs(t, res.Errors[1].Err, os.ErrNotExist)
	assert.Contains(t, res.Errors[0].Error(), "not linked to")

	close(events)
	var types []event.Type
	for e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, event.VerifyStarted, types[0])
	assert.Len(t, types, 4)
}

func TestVerify_Symlinks(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base")
	good := filepath.Join(dir, "good")
	wrong := filepath.Join(dir, "wrong")
	plain := filepath.Join(dir, "plain")
	writeFile(t, base, []byte("x"))
	require.NoError(t, os.Symlink(base, good))
	require.NoError(t, os.Symlink(filepath.Join(dir, "elsewhere"), wrong))
	writeFile(t, plain, []byte("x"))

	res := Verify(t.Context(), VerifyConfig{Link: LinkSymbolic}, []mergedPair{
		{base: base, candidate: good},
		{base: base, candidate: wrong},
		{base: base, candidate: plain},
	})
	assert.Equal(t, int64(1), res.Verified)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, wrong, res.Errors[0].Path)
	assert.ErrorIs(t, res.Errors[1].Err, errNotSymlink)
}
