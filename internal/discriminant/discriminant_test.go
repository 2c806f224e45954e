package discriminant

import (
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garana/filededup/internal/digest"
	"github.com/garana/filededup/internal/platform"
)

func TestParseStage(t *testing.T) {
	tests := []struct {
		spec    string
		attrs   Attr
		digests digest.Set
		end     int64
	}{
		{"dev,size,perms,user,group", Dev | Size | Perms | User | Group, 0, 0},
		{"sha1:4096", 0, digest.SetOf(digest.SHA1), 4096},
		{"sha512,ripemd160", 0, digest.SetOf(digest.SHA512, digest.RIPEMD160), 0},
		{"basename,mtime,md5", Basename | MTime, digest.SetOf(digest.MD5), 0},
		{"sha256:100,md5", 0, digest.SetOf(digest.SHA256, digest.MD5), 100},
		{"", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := ParseStage(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.attrs, s.Attrs)
			assert.Equal(t, tt.digests, s.Digests)
			assert.Equal(t, tt.end, s.End)
		})
	}
}

func TestParseStageErrors(t *testing.T) {
	for _, spec := range []string{
		"inode",
		"crc32",
		"sha1:abc",
		"sha1:-5",
		"sha1:10,md5:20",
		"sha1:0,md5:20",
		"SIZE",
	} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseStage(spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestStageStringRoundTrip(t *testing.T) {
	for _, spec := range []string{
		"dev,size,user,group,perms",
		"sha1:4096",
		"sha512,ripemd160",
		"basename,md5:0",
	} {
		s, err := ParseStage(spec)
		require.NoError(t, err)
		again, err := ParseStage(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, again, spec)
	}
	assert.Equal(t, "sha1:4096", DefaultPipeline()[1].String())
}

func TestDefaultPipeline(t *testing.T) {
	p := DefaultPipeline()
	require.Len(t, p, 3)
	assert.Equal(t, Dev|Size|Perms|User|Group, p[0].Attrs)
	assert.False(t, p[0].HasDigests())
	assert.Equal(t, digest.SetOf(digest.SHA1), p[1].Digests)
	assert.Equal(t, int64(4096), p[1].End)
	assert.Equal(t, digest.SetOf(digest.SHA512, digest.RIPEMD160), p[2].Digests)
	assert.Zero(t, p[2].End)
}

func TestParsePipeline(t *testing.T) {
	p, err := ParsePipeline([]string{"size", "md5"})
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.Equal(t, Size, p[0].Attrs)

	_, err = ParsePipeline([]string{"size", "bogus"})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNormalizePromotesStatAttrs(t *testing.T) {
	p, err := ParsePipeline([]string{"dev", "size,mtime,dev,basename,sha1", "perms,md5"})
	require.NoError(t, err)

	out, notes, err := Normalize(p, false)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "moved")

	assert.Equal(t, Dev|Size|MTime|Perms, out[0].Attrs)
	assert.Equal(t, Dev|Basename, out[1].Attrs, "dev and basename stay local")
	assert.Equal(t, Attr(0), out[2].Attrs)

	// The input is left untouched.
	assert.Equal(t, Dev, p[0].Attrs)
}

func TestNormalizeForcesDevForHardlinks(t *testing.T) {
	p, err := ParsePipeline([]string{"size", "sha1"})
	require.NoError(t, err)

	out, notes, err := Normalize(p, true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "dev")
	assert.Equal(t, Dev|Size, out[0].Attrs)

	out, notes, err = Normalize(p, false)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, Size, out[0].Attrs)
}

func TestNormalizeEmpty(t *testing.T) {
	_, _, err := Normalize(nil, true)
	assert.ErrorIs(t, err, ErrConfig)
}

func testMeta() platform.Meta {
	return platform.Meta{
		ModTime: time.Unix(1700000000, 0),
		DevIno:  platform.DevIno{Dev: 0x801, Ino: 42},
		Size:    100,
		Nlink:   1,
		Mode:    0o644,
		UID:     1000,
		GID:     100,
	}
}

func TestBuildKeyLayout(t *testing.T) {
	s, err := ParseStage("perms,group,user,mtime,size,dev")
	require.NoError(t, err)

	k := BuildKey(s, testMeta(), "/a/b", nil)
	require.Len(t, k, 7*8)
	assert.Equal(t, len(k), k.Len())
	assert.Equal(t, KeySize(s), len(k))

	words := make([]uint64, 6)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(k.Body()[i*8:])
	}
	// Field order is fixed regardless of token order.
	assert.Equal(t, []uint64{0x801, 100, 1700000000, 1000, 100, 0o644}, words)
}

func TestBuildKeyBasename(t *testing.T) {
	s, err := ParseStage("basename")
	require.NoError(t, err)

	k := BuildKey(s, testMeta(), "/x/y/ab", nil)
	require.Len(t, k, 3*8)
	body := k.Body()
	assert.Equal(t, uint64('a')*33+uint64('b'), binary.LittleEndian.Uint64(body))
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(body[8:]))

	other := BuildKey(s, testMeta(), "/elsewhere/ab", nil)
	assert.Equal(t, k, other)
	upper := BuildKey(s, testMeta(), "/x/y/AB", nil)
	assert.NotEqual(t, k, upper)
}

func TestBasenameHash(t *testing.T) {
	h, n := BasenameHash("plain")
	h2, n2 := BasenameHash("/dir/plain")
	assert.Equal(t, h, h2)
	assert.Equal(t, 5, n)
	assert.Equal(t, n, n2)

	h, n = BasenameHash("/dir/")
	assert.Zero(t, h)
	assert.Zero(t, n)
}

func TestBuildKeyDigests(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/f"
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	s, err := ParseStage("size,sha512,md5")
	require.NoError(t, err)

	eng := digest.NewEngine(digest.ReadConfig{Policy: digest.PolicyRead})
	sums, _, err := eng.Sum(t.Context(), path, s.Digests, s.End)
	require.NoError(t, err)

	k := BuildKey(s, testMeta(), path, &sums)
	assert.Equal(t, 8+8+16+64, len(k))
	body := k.Body()
	assert.Equal(t, sums.Get(digest.MD5), body[8:24], "md5 precedes sha512")
	assert.Equal(t, sums.Get(digest.SHA512), body[24:])
}

func TestBuildKeyEquality(t *testing.T) {
	s := DefaultPipeline()[0]
	a := testMeta()
	b := testMeta()
	b.DevIno.Ino = 99
	b.ModTime = time.Unix(1, 0)

	assert.Equal(t, BuildKey(s, a, "/p/a", nil), BuildKey(s, b, "/q/b", nil),
		"inode and mtime are not part of the stage")

	b.UID = 0
	assert.NotEqual(t, BuildKey(s, a, "/p/a", nil), BuildKey(s, b, "/q/b", nil))
}

func TestKeyAccessorsOnShortInput(t *testing.T) {
	var k Key
	assert.Zero(t, k.Len())
	assert.Nil(t, k.Body())
	assert.Empty(t, k.String())
}
