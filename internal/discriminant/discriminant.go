// Package discriminant describes the comparison stages of a dedup run and
// builds the composite key of a file for one stage.
package discriminant

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/garana/filededup/internal/digest"
)

// ErrConfig marks malformed stage specifications.
var ErrConfig = errors.New("invalid discriminant")

// Attr is a cheap, metadata-only discriminant.
type Attr uint8

const (
	Dev Attr = 1 << iota
	Size
	MTime
	User
	Group
	Perms
	Basename
)

// statAttrs are only meaningful on the first stage; later stages have them
// moved to stage 0.
const statAttrs = Size | MTime | User | Group | Perms

var attrNames = []struct {
	attr Attr
	name string
}{
	{Dev, "dev"},
	{Size, "size"},
	{MTime, "mtime"},
	{User, "user"},
	{Group, "group"},
	{Perms, "perms"},
	{Basename, "basename"},
}

func (a Attr) String() string {
	var names []string
	for _, an := range attrNames {
		if a&an.attr != 0 {
			names = append(names, an.name)
		}
	}
	return strings.Join(names, ",")
}

// Stage is one round of the pipeline: a set of cheap attributes and digest
// algorithms, plus an optional bound on how many leading bytes are digested.
type Stage struct {
	Attrs   Attr
	Digests digest.Set
	// End limits digesting to the first End bytes; 0 means the whole file.
	End int64
	// hasEnd records an explicit ":N" so a second bound is rejected even
	// when the first was ":0".
	hasEnd bool
}

// HasDigests reports whether the stage needs file content.
func (s Stage) HasDigests() bool { return !s.Digests.Empty() }

// String renders the stage in the grammar accepted by ParseStage.
func (s Stage) String() string {
	var tokens []string
	for _, an := range attrNames {
		if s.Attrs&an.attr != 0 {
			tokens = append(tokens, an.name)
		}
	}
	algs := s.Digests.Algorithms()
	for i, a := range algs {
		tok := a.String()
		if i == len(algs)-1 && (s.End > 0 || s.hasEnd) {
			tok += ":" + strconv.FormatInt(s.End, 10)
		}
		tokens = append(tokens, tok)
	}
	return strings.Join(tokens, ",")
}

// ParseStage parses a comma separated list of attribute names and
// ALGORITHM[:LIMIT] tokens.
func ParseStage(spec string) (Stage, error) {
	var s Stage
	for _, tok := range strings.Split(spec, ",") {
		if tok == "" {
			continue
		}
		if err := s.parseToken(tok); err != nil {
			return Stage{}, err
		}
	}
	return s, nil
}

func (s *Stage) parseToken(tok string) error {
	for _, an := range attrNames {
		if tok == an.name {
			s.Attrs |= an.attr
			return nil
		}
	}

	name, limit, hasLimit := strings.Cut(tok, ":")
	alg, err := digest.ParseAlgorithm(name)
	if err != nil {
		return fmt.Errorf("%w: unknown method %q", ErrConfig, tok)
	}

	if hasLimit {
		if s.hasEnd {
			return fmt.Errorf("%w: only one range can be specified per step (%q)", ErrConfig, tok)
		}
		end, err := strconv.ParseInt(limit, 10, 64)
		if err != nil || end < 0 {
			return fmt.Errorf("%w: invalid byte limit in %q", ErrConfig, tok)
		}
		s.End = end
		s.hasEnd = true
	}

	s.Digests |= digest.SetOf(alg)
	return nil
}

// Pipeline is the ordered list of stages of a run.
type Pipeline []Stage

// DefaultPipeline cheaply splits by device, size and ownership, then by a
// digest of the first 4 KiB, and finally by two full-content digests.
func DefaultPipeline() Pipeline {
	return Pipeline{
		{Attrs: Dev | Size | Perms | User | Group},
		{Digests: digest.SetOf(digest.SHA1), End: 4096, hasEnd: true},
		{Digests: digest.SetOf(digest.SHA512, digest.RIPEMD160)},
	}
}

// ParsePipeline parses one stage per spec.
func ParsePipeline(specs []string) (Pipeline, error) {
	p := make(Pipeline, 0, len(specs))
	for _, spec := range specs {
		s, err := ParseStage(spec)
		if err != nil {
			return nil, err
		}
		p = append(p, s)
	}
	return p, nil
}

func (p Pipeline) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = fmt.Sprintf("[%d] %s", i, s)
	}
	return strings.Join(parts, " ")
}

// Normalize returns a copy of p where size, mtime, user, group and perms
// set on later stages are moved to stage 0, and where dev is forced into
// stage 0 when merging with hardlinks. The returned notes describe every
// adjustment.
func Normalize(p Pipeline, hardlink bool) (Pipeline, []string, error) {
	if len(p) == 0 {
		return nil, nil, fmt.Errorf("%w: empty pipeline", ErrConfig)
	}

	out := append(Pipeline(nil), p...)
	var notes []string

	var moved Attr
	for i := 1; i < len(out); i++ {
		moved |= out[i].Attrs & statAttrs
		out[i].Attrs &^= statAttrs
	}
	if moved != 0 {
		notes = append(notes, fmt.Sprintf(
			"size, mtime, user, group and perms should be used only in the first step; moved %s to step 0", moved))
		out[0].Attrs |= moved
	}

	if hardlink && out[0].Attrs&Dev == 0 {
		notes = append(notes, `forcing "dev" in step 0 (will merge with hardlinks)`)
		out[0].Attrs |= Dev
	}

	return out, notes, nil
}
