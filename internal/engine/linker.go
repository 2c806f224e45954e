package engine

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LinkMode selects how duplicates are collapsed. It is chosen once per run.
type LinkMode int

const (
	// LinkHard replaces each candidate with a hardlink to the base.
	LinkHard LinkMode = iota
	// LinkSymbolic replaces each candidate with a symlink to the base.
	LinkSymbolic
)

func (m LinkMode) String() string {
	switch m {
	case LinkHard:
		return "hard"
	case LinkSymbolic:
		return "symbolic"
	default:
		return fmt.Sprintf("LinkMode(%d)", int(m))
	}
}

// ParseLinkMode accepts "hard", "hardlink", "symbolic", "symlink" and "soft".
func ParseLinkMode(s string) (LinkMode, error) {
	switch strings.ToLower(s) {
	case "hard", "hardlink":
		return LinkHard, nil
	case "symbolic", "symlink", "soft":
		return LinkSymbolic, nil
	default:
		return 0, fmt.Errorf("%w: unknown link mode %q", ErrConfig, s)
	}
}

// fsOps is every filesystem mutation the merge phase performs.
type fsOps interface {
	Link(oldname, newname string) error
	Symlink(oldname, newname string) error
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

type osOps struct{}

func (osOps) Link(oldname, newname string) error    { return os.Link(oldname, newname) }
func (osOps) Symlink(oldname, newname string) error { return os.Symlink(oldname, newname) }
func (osOps) Rename(oldpath, newpath string) error  { return os.Rename(oldpath, newpath) }
func (osOps) Remove(name string) error              { return os.Remove(name) }

// dryRunOps succeeds without touching the filesystem.
type dryRunOps struct{}

func (dryRunOps) Link(_, _ string) error    { return nil }
func (dryRunOps) Symlink(_, _ string) error { return nil }
func (dryRunOps) Rename(_, _ string) error  { return nil }
func (dryRunOps) Remove(_ string) error     { return nil }

// loggedOps logs every step before delegating.
type loggedOps struct {
	next fsOps
	log  *slog.Logger
}

func (o loggedOps) Link(oldname, newname string) error {
	o.log.Debug("link", "target", oldname, "path", newname)
	return o.next.Link(oldname, newname)
}

func (o loggedOps) Symlink(oldname, newname string) error {
	o.log.Debug("symlink", "target", oldname, "path", newname)
	return o.next.Symlink(oldname, newname)
}

func (o loggedOps) Rename(oldpath, newpath string) error {
	o.log.Debug("rename", "from", oldpath, "to", newpath)
	return o.next.Rename(oldpath, newpath)
}

func (o loggedOps) Remove(name string) error {
	o.log.Debug("unlink", "path", name)
	return o.next.Remove(name)
}

// linker swaps a candidate for a link to base, using scratch to hold the
// candidate's content until the swap is complete. On failure it restores
// the candidate where possible and returns a *danglingError when it could
// not.
type linker interface {
	link(base, candidate, scratch string) error
}

func newLinker(mode LinkMode, fs fsOps) (linker, error) {
	switch mode {
	case LinkHard:
		return hardLinker{fs: fs}, nil
	case LinkSymbolic:
		return symLinker{fs: fs}, nil
	default:
		return nil, fmt.Errorf("%w: unhandled link mode %v", ErrInternal, mode)
	}
}

type hardLinker struct{ fs fsOps }

func (h hardLinker) link(base, candidate, scratch string) error {
	if err := h.fs.Link(candidate, scratch); err != nil {
		return fmt.Errorf("create temporary link %s to %s: %w", scratch, candidate, err)
	}

	if err := h.fs.Remove(candidate); err != nil {
		err = fmt.Errorf("remove %s: %w", candidate, err)
		if rerr := h.fs.Remove(scratch); rerr != nil {
			return &danglingError{Dangling{Scratch: scratch, Original: candidate}, err}
		}
		return err
	}

	if err := h.fs.Link(base, candidate); err != nil {
		err = fmt.Errorf("link %s to %s: %w", candidate, base, err)
		if rerr := h.fs.Rename(scratch, candidate); rerr != nil {
			return &danglingError{Dangling{Scratch: scratch, Original: candidate, Restore: true}, err}
		}
		return err
	}

	if err := h.fs.Remove(scratch); err != nil {
		return &danglingError{
			Dangling{Scratch: scratch, Original: candidate},
			fmt.Errorf("remove temporary link %s: %w", scratch, err),
		}
	}
	return nil
}

type symLinker struct{ fs fsOps }

func (s symLinker) link(base, candidate, scratch string) error {
	if err := s.fs.Rename(candidate, scratch); err != nil {
		return fmt.Errorf("rename %s to %s: %w", candidate, scratch, err)
	}

	if err := s.fs.Symlink(base, candidate); err != nil {
		err = fmt.Errorf("symlink %s to %s: %w", candidate, base, err)
		if rerr := s.fs.Rename(scratch, candidate); rerr != nil {
			return &danglingError{Dangling{Scratch: scratch, Original: candidate, Restore: true}, err}
		}
		return err
	}

	if err := s.fs.Remove(scratch); err != nil {
		return &danglingError{
			Dangling{Scratch: scratch, Original: candidate},
			fmt.Errorf("remove %s: %w", scratch, err),
		}
	}
	return nil
}
