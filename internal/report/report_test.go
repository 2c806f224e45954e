package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteGroup_Newline(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, '\n')

	require.NoError(t, w.WriteGroup([]string{"/a", "/b"}))
	require.NoError(t, w.WriteGroup([]string{"/c", "/d", "/e"}))
	require.NoError(t, w.WriteGroup(nil))
	require.NoError(t, w.Close())

	assert.Equal(t, "/a\n/b\n\n/c\n/d\n/e\n", buf.String())
}

func TestWriteGroup_NUL(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)

	require.NoError(t, w.WriteGroup([]string{"/x\ny", "/z"}))
	require.NoError(t, w.WriteGroup([]string{"/p", "/q"}))
	require.NoError(t, w.Close())

	assert.Equal(t, "/x\ny\x00/z\x00\x00/p\x00/q\x00", buf.String())
}

func TestCreate_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	w, err := Create(path, '\n')
	require.NoError(t, err)
	require.NoError(t, w.WriteGroup([]string{"/a", "/b"}))
	require.NoError(t, w.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/a\n/b\n", string(got))
}

func TestCreate_Zstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt.zst")
	w, err := Create(path, '\n')
	require.NoError(t, err)
	require.NoError(t, w.WriteGroup([]string{"/a", "/b"}))
	require.NoError(t, w.WriteGroup([]string{"/c", "/d"}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	got, err := dec.DecodeAll(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "/a\n/b\n\n/c\n/d\n", string(got))
}

func TestCreate_Unopenable(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "report"), '\n')
	require.Error(t, err)
}
