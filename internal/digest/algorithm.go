// Package digest computes several content digests over a file in a single
// read pass, optionally bounded to the first N bytes of the file.
package digest

import (
	"crypto/md5"  //nolint:gosec // G501: md5 is a selectable discriminant, not a security boundary
	"crypto/sha1" //nolint:gosec // G505: same as above
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"math/bits"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // SA1019: kept for compatibility with existing pipelines
)

// Algorithm identifies one digest algorithm. Values are single bits so that
// several algorithms can be combined in a Set.
type Algorithm uint16

const (
	MD5 Algorithm = 1 << iota
	SHA1
	SHA224
	SHA256
	SHA384
	SHA512
	RIPEMD160
	BLAKE3
	XXH64
)

const numAlgorithms = 9

type algorithmInfo struct {
	name string
	size int
	new  func() hash.Hash
}

// Indexed by bit position; this is also the canonical order in which
// digests are laid out in composite keys.
var algorithms = [numAlgorithms]algorithmInfo{
	{"md5", md5.Size, md5.New},
	{"sha1", sha1.Size, sha1.New},
	{"sha224", sha256.Size224, sha256.New224},
	{"sha256", sha256.Size, sha256.New},
	{"sha384", sha512.Size384, sha512.New384},
	{"sha512", sha512.Size, sha512.New},
	{"ripemd160", ripemd160.Size, ripemd160.New},
	{"blake3", 32, func() hash.Hash { return blake3.New() }},
	{"xxh64", 8, func() hash.Hash { return xxhash.New() }},
}

func (a Algorithm) index() int {
	return bits.TrailingZeros16(uint16(a))
}

func (a Algorithm) valid() bool {
	return a != 0 && a&(a-1) == 0 && a.index() < numAlgorithms
}

func (a Algorithm) String() string {
	if !a.valid() {
		return fmt.Sprintf("Algorithm(%#x)", uint16(a))
	}
	return algorithms[a.index()].name
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() int {
	if !a.valid() {
		return 0
	}
	return algorithms[a.index()].size
}

func (a Algorithm) newHash() hash.Hash {
	return algorithms[a.index()].new()
}

// ParseAlgorithm maps a lower-case algorithm name to its Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	for i, info := range algorithms {
		if info.name == name {
			return Algorithm(1 << i), nil
		}
	}
	return 0, fmt.Errorf("unknown digest algorithm %q", name)
}

// Names lists every supported algorithm name in canonical order.
func Names() []string {
	names := make([]string, numAlgorithms)
	for i, info := range algorithms {
		names[i] = info.name
	}
	return names
}

// Set is a combination of algorithms.
type Set uint16

// SetOf builds a Set from individual algorithms.
func SetOf(algs ...Algorithm) Set {
	var s Set
	for _, a := range algs {
		s |= Set(a)
	}
	return s
}

// Has reports whether a is part of the set.
func (s Set) Has(a Algorithm) bool { return s&Set(a) != 0 }

// Empty reports whether the set selects no algorithm.
func (s Set) Empty() bool { return s == 0 }

// Algorithms returns the members of s in canonical order.
func (s Set) Algorithms() []Algorithm {
	var out []Algorithm
	for i := range numAlgorithms {
		if a := Algorithm(1 << i); s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// Size returns the combined digest length of every member.
func (s Set) Size() int {
	n := 0
	for _, a := range s.Algorithms() {
		n += a.Size()
	}
	return n
}

func (s Set) String() string {
	algs := s.Algorithms()
	names := make([]string, len(algs))
	for i, a := range algs {
		names[i] = a.String()
	}
	return strings.Join(names, ",")
}
