package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/garana/filededup/internal/event"
	"github.com/garana/filededup/internal/platform"
)

type outcome int

const (
	outcomeMerged outcome = iota
	outcomeSkipped
	outcomeFailed
)

// mergedPair is a candidate that now links to base.
type mergedPair struct {
	base      string
	candidate string
}

// merger runs the merge phase over the final groups.
type merger struct {
	cfg     *Config
	log     *slog.Logger
	fs      fsOps
	linker  linker
	scratch *scratchRegistry
	pid     int
	now     func() time.Time

	// detached counts, in dry-run mode, the links each inode would have
	// lost so far, so link counts read later match a real run.
	detached map[platform.DevIno]uint64

	merged  []mergedPair
	failed  int
	skipped int
}

func newMerger(cfg *Config, log *slog.Logger) (*merger, error) {
	fs := cfg.fs
	if fs == nil {
		fs = osOps{}
		if cfg.DryRun {
			fs = dryRunOps{}
		}
	}
	fs = loggedOps{next: fs, log: log}

	l, err := newLinker(cfg.Link, fs)
	if err != nil {
		return nil, err
	}
	return &merger{
		cfg:      cfg,
		log:      log,
		fs:       fs,
		linker:   l,
		scratch:  newScratchRegistry(),
		pid:      os.Getpid(),
		now:      time.Now,
		detached: make(map[platform.DevIno]uint64),
	}, nil
}

// mergeGroup reports g and replaces every member after the first with a
// link to it. Cancellation is only observed between candidates.
func (m *merger) mergeGroup(ctx context.Context, state *RunState, g Group) error {
	if m.cfg.Report != nil {
		if err := m.cfg.Report.WriteGroup(g.Paths()); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	base := g.Members[0]
	baseMeta, err := platform.Lstat(base.Path)
	if err != nil || !baseMeta.IsRegular() {
		if err == nil {
			err = errors.New("no longer a regular file")
		}
		m.log.Error("cannot use merge base", "base", base.Path, "error", err)
		m.failed += len(g.Members) - 1
		m.cfg.Stats.AddMergesFailed(int64(len(g.Members) - 1))
		return nil
	}
	m.log.Debug("merging", "base", base.Path, "candidates", len(g.Members)-1)

	for _, c := range g.Members[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch m.mergeCandidate(state, base.Path, baseMeta, c) {
		case outcomeMerged:
			m.merged = append(m.merged, mergedPair{base: base.Path, candidate: c.Path})
		case outcomeFailed:
			m.failed++
		case outcomeSkipped:
			m.skipped++
		}
	}
	return nil
}

func (m *merger) mergeCandidate(state *RunState, basePath string, base platform.Meta, c Candidate) outcome {
	fresh, err := platform.Lstat(c.Path)
	if err != nil {
		return m.fail(basePath, c.Path, fmt.Errorf("could not stat %s: %w", c.Path, err))
	}

	switch {
	case !fresh.IsRegular():
		return m.skipCandidate(basePath, c.Path, "no longer a regular file")
	case fresh.DevIno == base.DevIno:
		return m.skipCandidate(basePath, c.Path, "same inode")
	case fresh.Size != c.Meta.Size || !fresh.ModTime.Equal(c.Meta.ModTime):
		m.log.Warn("file changed since it was scanned, not merging", "path", c.Path)
		return m.skipCandidate(basePath, c.Path, "changed since scan")
	}

	nlink := fresh.Nlink
	if m.cfg.DryRun {
		nlink -= m.detached[fresh.DevIno]
	}

	scratch := ScratchName(c.Path, m.pid, m.now())
	if m.cfg.Journal != nil && !m.cfg.DryRun {
		if err := m.cfg.Journal.Record(scratch, c.Path, m.cfg.Link); err != nil {
			return m.fail(basePath, c.Path, err)
		}
	}
	m.scratch.register(scratch, c.Path)

	if err := m.linker.link(basePath, c.Path, scratch); err != nil {
		var de *danglingError
		if errors.As(err, &de) {
			m.scratch.abandon(de.Dangling)
			m.log.Error("WARNING: dangling temporary file", "scratch", de.Scratch,
				"original", de.Original, "action", de.Dangling.String())
		} else {
			m.release(scratch)
		}
		return m.fail(basePath, c.Path, err)
	}
	m.release(scratch)

	if m.cfg.DryRun {
		m.detached[fresh.DevIno]++
	}

	var saved int64
	if nlink == 1 {
		saved = fresh.Size
		state.Saved += saved
		m.cfg.Stats.AddBytesSaved(saved)
	}
	m.cfg.Stats.AddFilesMerged(1)
	m.log.Debug("merged", "base", basePath, "path", c.Path, "mode", m.cfg.Link.String(),
		"nlink", nlink, "saved", saved)
	emitEvent(m.cfg.Events, event.Event{Type: event.MergeCompleted, Path: c.Path, Base: basePath, Size: saved})
	return outcomeMerged
}

func (m *merger) release(scratch string) {
	m.scratch.release(scratch)
	if m.cfg.Journal != nil && !m.cfg.DryRun {
		if err := m.cfg.Journal.Clear(scratch); err != nil {
			m.log.Warn("journal", "error", err)
		}
	}
}

func (m *merger) skipCandidate(base, path, reason string) outcome {
	m.log.Debug("not merging", "base", base, "path", path, "reason", reason)
	emitEvent(m.cfg.Events, event.Event{Type: event.MergeSkipped, Path: path, Base: base})
	return outcomeSkipped
}

func (m *merger) fail(base, path string, err error) outcome {
	m.cfg.Stats.AddMergesFailed(1)
	m.log.Error("merge failed", "base", base, "path", path, "error", err)
	emitEvent(m.cfg.Events, event.Event{Type: event.MergeFailed, Path: path, Base: base, Error: err})
	return outcomeFailed
}
