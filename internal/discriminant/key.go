package discriminant

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/garana/filededup/internal/digest"
	"github.com/garana/filededup/internal/platform"
)

const wordSize = 8

// Key is the composite key of one file for one stage. The first word holds
// the total key length in bytes, so keys can be embedded in larger buffers
// and still be self-delimiting. Two files are equivalent at a stage iff
// their keys are byte-identical.
type Key []byte

// Len returns the length recorded in the key header.
func (k Key) Len() int {
	if len(k) < wordSize {
		return 0
	}
	return int(binary.LittleEndian.Uint64(k))
}

// Body returns the key without its length header.
func (k Key) Body() []byte {
	if len(k) < wordSize {
		return nil
	}
	return k[wordSize:]
}

func (k Key) String() string {
	return hex.EncodeToString(k.Body())
}

// KeySize returns the length of keys built for s.
func KeySize(s Stage) int {
	n := wordSize
	for _, an := range attrNames {
		if s.Attrs&an.attr == 0 {
			continue
		}
		if an.attr == Basename {
			n += 2 * wordSize
		} else {
			n += wordSize
		}
	}
	return n + s.Digests.Size()
}

// BuildKey encodes meta, the basename of path and sums according to s.
// sums may be nil when s has no digests.
func BuildKey(s Stage, meta platform.Meta, path string, sums *digest.Sums) Key {
	k := make(Key, wordSize, KeySize(s))

	putWord := func(v uint64) {
		k = binary.LittleEndian.AppendUint64(k, v)
	}

	if s.Attrs&Dev != 0 {
		putWord(meta.DevIno.Dev)
	}
	if s.Attrs&Size != 0 {
		putWord(uint64(meta.Size)) //nolint:gosec // G115: sizes are non-negative
	}
	if s.Attrs&MTime != 0 {
		putWord(uint64(meta.ModTime.Unix())) //nolint:gosec // G115: bit pattern only
	}
	if s.Attrs&User != 0 {
		putWord(uint64(meta.UID))
	}
	if s.Attrs&Group != 0 {
		putWord(uint64(meta.GID))
	}
	if s.Attrs&Perms != 0 {
		putWord(uint64(meta.Mode))
	}
	if s.Attrs&Basename != 0 {
		h, n := BasenameHash(path)
		putWord(h)
		putWord(uint64(n)) //nolint:gosec // G115: lengths are non-negative
	}

	if sums != nil {
		for _, a := range s.Digests.Algorithms() {
			k = append(k, sums.Get(a)...)
		}
	}

	binary.LittleEndian.PutUint64(k, uint64(len(k)))
	return k
}

// BasenameHash hashes the bytes following the last '/' of path with the
// multiplier-33 polynomial. It is case sensitive and applies no Unicode
// normalisation.
func BasenameHash(path string) (hash uint64, length int) {
	base := path[strings.LastIndexByte(path, '/')+1:]
	for i := 0; i < len(base); i++ {
		hash = hash*33 + uint64(base[i])
	}
	return hash, len(base)
}
