package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/garana/filededup/internal/filter"
	"github.com/garana/filededup/internal/platform"
	"github.com/garana/filededup/internal/stats"
)

// ScannerConfig controls scanner behavior.
type ScannerConfig struct {
	Roots   []string
	Workers int
	Filter  *filter.Chain
	Logger  *slog.Logger
	Stats   stats.Writer
}

// Scanner traverses directory trees in parallel and emits every regular
// file that passes the filter. Symlinks and special files are never
// emitted, and symlinked directories are not followed.
type Scanner struct {
	cfg   ScannerConfig
	found chan Candidate
	errs  chan error
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 8)
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.NewChain()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	return &Scanner{
		cfg:   cfg,
		found: make(chan Candidate, cfg.Workers*4),
		errs:  make(chan error, cfg.Workers*4),
	}
}

// Scan starts the scanner. The caller must consume both channels until
// they close. Emission order is not deterministic.
func (s *Scanner) Scan(ctx context.Context) (<-chan Candidate, <-chan error) {
	go func() {
		defer close(s.found)
		defer close(s.errs)
		for i, root := range s.cfg.Roots {
			if ctx.Err() != nil {
				return
			}
			s.scanRoot(ctx, i, root)
		}
	}()
	return s.found, s.errs
}

type dirWork struct {
	path string
	rel  string
}

func (s *Scanner) scanRoot(ctx context.Context, idx int, root string) {
	info, err := os.Lstat(root)
	if err != nil {
		s.sendErr(ctx, fmt.Errorf("lstat %s: %w", root, err))
		return
	}

	switch mode := info.Mode(); {
	case mode&os.ModeSymlink != 0:
		s.cfg.Logger.Debug("root is a symlink, ignoring", "path", root)
		return
	case mode.IsRegular():
		s.processFile(ctx, idx, root, filepath.Base(root), info)
		return
	case !mode.IsDir():
		return
	}

	workQueue := make(chan dirWork, s.cfg.Workers*2)
	var outstanding sync.WaitGroup // directories queued but not yet processed

	var workerWg sync.WaitGroup
	for range s.cfg.Workers {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for w := range workQueue {
				s.scanDir(ctx, idx, w, workQueue, &outstanding)
				outstanding.Done()
			}
		}()
	}

	outstanding.Add(1)
	workQueue <- dirWork{path: root}

	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()
}

func (s *Scanner) scanDir(ctx context.Context, idx int, w dirWork, workQueue chan<- dirWork, outstanding *sync.WaitGroup) {
	entries, err := os.ReadDir(w.path)
	if err != nil {
		s.sendErr(ctx, fmt.Errorf("readdir %s: %w", w.path, err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		path := filepath.Join(w.path, entry.Name())
		rel := entry.Name()
		if w.rel != "" {
			rel = w.rel + "/" + entry.Name()
		}

		switch typ := entry.Type(); {
		case typ.IsDir():
			if !s.cfg.Filter.Dir(rel) {
				s.cfg.Logger.Debug("excluded directory", "path", path)
				continue
			}
			outstanding.Add(1)
			go func() {
				// Queue from a goroutine so a full queue never blocks a
				// worker that is itself needed to drain it.
				select {
				case workQueue <- dirWork{path: path, rel: rel}:
				case <-ctx.Done():
					outstanding.Done()
				}
			}()
		case typ.IsRegular():
			info, err := entry.Info()
			if err != nil {
				s.sendErr(ctx, fmt.Errorf("lstat %s: %w", path, err))
				continue
			}
			s.processFile(ctx, idx, path, rel, info)
		default:
			// symlinks, devices, fifos and sockets are never candidates
		}
	}
}

func (s *Scanner) processFile(ctx context.Context, idx int, path, rel string, info os.FileInfo) {
	if IsScratchName(path) {
		s.cfg.Logger.Warn("leftover scratch file, ignoring", "path", path)
		s.cfg.Stats.AddFilesSkipped(1)
		return
	}

	meta, err := platform.MetaFromInfo(path, info)
	if err != nil {
		s.sendErr(ctx, err)
		return
	}
	s.cfg.Stats.AddFilesScanned(1)

	if reason := s.cfg.Filter.File(rel, meta.Size, meta.ModTime); reason != filter.Admitted {
		s.cfg.Stats.AddFilesSkipped(1)
		s.cfg.Logger.Debug("ignoring file", "path", path, "reason", string(reason), "size", meta.Size)
		return
	}

	select {
	case s.found <- Candidate{Path: path, Meta: meta, root: idx}:
	case <-ctx.Done():
	}
}

func (s *Scanner) sendErr(ctx context.Context, err error) {
	select {
	case s.errs <- err:
	case <-ctx.Done():
	}
}
