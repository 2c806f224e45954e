package engine

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/garana/filededup/internal/event"
	"github.com/garana/filededup/internal/filter"
	"github.com/garana/filededup/internal/platform"
)

// Candidate is a regular file admitted to the pipeline, with the metadata
// snapshot taken when it was found.
type Candidate struct {
	Path string
	Meta platform.Meta
	// root orders candidates from earlier roots first, so the base of a
	// group comes from the first root that contains a member.
	root int
}

// Group is a final set of duplicates. Members[0] is the merge base.
type Group struct {
	Members []Candidate
}

// Paths returns the member paths, base first.
func (g Group) Paths() []string {
	paths := make([]string, len(g.Members))
	for i, m := range g.Members {
		paths[i] = m.Path
	}
	return paths
}

func sortCandidates(cands []Candidate) {
	slices.SortFunc(cands, func(a, b Candidate) int {
		if c := cmp.Compare(a.root, b.root); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
}

// ReadPaths reads delim-terminated paths from r and calls fn for each one.
// A trailing path without terminator is accepted. Empty entries are
// skipped. With a NUL delimiter, paths may contain newlines.
func ReadPaths(ctx context.Context, r io.Reader, delim byte, fn func(path string) error) error {
	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := br.ReadString(delim)
		if path := strings.TrimSuffix(line, string(delim)); path != "" {
			if ferr := fn(path); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read path list: %w", err)
		}
	}
}

// readCandidates turns a path list into candidates, in list order.
func (r *runner) readCandidates(ctx context.Context) ([]Candidate, error) {
	var cands []Candidate
	err := ReadPaths(ctx, r.cfg.Paths, r.cfg.Delim, func(path string) error {
		meta, err := platform.Lstat(path)
		if err != nil {
			r.fileFailed(path, fmt.Errorf("lstat %s: %w", path, err))
			return nil
		}
		if !meta.IsRegular() {
			r.log.Debug("not a regular file, ignoring", "path", path)
			return nil
		}
		if IsScratchName(path) {
			r.log.Warn("leftover scratch file, ignoring", "path", path)
			r.cfg.Stats.AddFilesSkipped(1)
			return nil
		}
		r.cfg.Stats.AddFilesScanned(1)
		rel := strings.TrimPrefix(path, "/")
		if reason := r.cfg.Filter.File(rel, meta.Size, meta.ModTime); reason != filter.Admitted {
			r.skip(path, meta, reason)
			return nil
		}
		cands = append(cands, Candidate{Path: path, Meta: meta})
		return nil
	})
	return cands, err
}

// scanCandidates walks every root and returns the admitted regular files,
// sorted by root then path.
func (r *runner) scanCandidates(ctx context.Context) ([]Candidate, error) {
	s := NewScanner(ScannerConfig{
		Roots:   r.cfg.Roots,
		Workers: r.cfg.ScanWorkers,
		Filter:  r.cfg.Filter,
		Logger:  r.log,
		Stats:   r.cfg.Stats,
	})
	found, errs := s.Scan(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for err := range errs {
			r.cfg.Stats.AddFilesFailed(1)
			r.log.Warn("scan error", "error", err)
			emitEvent(r.cfg.Events, event.Event{Type: event.FileFailed, Error: err})
		}
	}()

	var cands []Candidate
	for c := range found {
		cands = append(cands, c)
	}
	<-done

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sortCandidates(cands)
	return cands, nil
}

// admit applies the checks that must hold before any file is touched.
func (r *runner) admit(cands []Candidate) error {
	if r.cfg.Link != LinkSymbolic {
		return nil
	}
	for _, c := range cands {
		if !filepath.IsAbs(c.Path) {
			return fmt.Errorf("%w: merging via symlinks requires absolute paths (got %s)", ErrConfig, c.Path)
		}
	}
	return nil
}

func (r *runner) skip(path string, meta platform.Meta, reason filter.Reason) {
	r.cfg.Stats.AddFilesSkipped(1)
	if reason == filter.TooYoung {
		r.log.Debug("ignoring file", "path", path, "reason", string(reason),
			"age", r.now.Sub(meta.ModTime).Round(time.Second))
	} else {
		r.log.Debug("ignoring file", "path", path, "reason", string(reason), "size", meta.Size)
	}
	emitEvent(r.cfg.Events, event.Event{Type: event.FileSkipped, Path: path, Size: meta.Size})
}

func (r *runner) fileFailed(path string, err error) {
	r.cfg.Stats.AddFilesFailed(1)
	r.log.Warn("skipping file", "path", path, "error", err)
	emitEvent(r.cfg.Events, event.Event{Type: event.FileFailed, Path: path, Error: err})
}
