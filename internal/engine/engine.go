package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/garana/filededup/internal/digest"
	"github.com/garana/filededup/internal/discriminant"
	"github.com/garana/filededup/internal/event"
	"github.com/garana/filededup/internal/filter"
	"github.com/garana/filededup/internal/stats"
)

var (
	// ErrConfig marks a configuration error detected before any file was
	// modified.
	ErrConfig = errors.New("configuration error")
	// ErrInternal marks a broken internal invariant.
	ErrInternal = errors.New("internal error")
)

// Reporter receives every final duplicate group, base first, before the
// group is merged.
type Reporter interface {
	WriteGroup(paths []string) error
}

// Config describes a dedup run.
type Config struct {
	// Roots are traversed recursively when Paths is nil.
	Roots []string
	// Paths, when set, supplies the candidate list instead of Roots. Each
	// path is terminated by Delim ('\n' or 0).
	Paths io.Reader
	Delim byte

	// Pipeline defaults to discriminant.DefaultPipeline.
	Pipeline discriminant.Pipeline
	Link     LinkMode
	DryRun   bool
	Verify   bool

	// Jobs is the number of concurrent digest workers, 1 to MaxJobs.
	Jobs        int
	ScanWorkers int
	Digests     *digest.Engine
	Filter      *filter.Chain

	Journal *Journal
	Report  Reporter
	// OpenOutputs, when set, is called once every candidate has been
	// admitted and before the first group is reported. Its result replaces
	// Journal and Report, so a run rejected earlier creates neither.
	OpenOutputs func() (Outputs, error)

	Events chan<- event.Event
	Stats  *stats.Collector
	Logger *slog.Logger
	// TraceKeys adds hex composite keys to per-file debug records.
	TraceKeys bool

	// fs replaces the filesystem mutations of the merge phase in tests.
	fs fsOps
}

// Outputs are the files a run writes besides the deduplicated tree.
type Outputs struct {
	Report  Reporter
	Journal *Journal
}

// Result is the outcome of a run.
type Result struct {
	Groups  []Group
	Saved   int64
	Merged  int
	Failed  int
	Skipped int
	// Dangling lists scratch files that need manual cleanup.
	Dangling []Dangling
	Verify   *VerifyResult
	Stats    stats.Snapshot
	Err      error
}

type runner struct {
	cfg      *Config
	log      *slog.Logger
	now      time.Time
	pipeline discriminant.Pipeline
}

// Run executes a dedup run, blocking until complete. Configuration errors
// are reported before any candidate is read.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.NewChain()
	}
	if cfg.Digests == nil {
		cfg.Digests = digest.NewEngine(digest.DefaultReadConfig())
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = 1
	}

	r := &runner{cfg: &cfg, log: cfg.Logger, now: time.Now()}
	fail := func(err error) Result {
		return Result{Stats: cfg.Stats.Snapshot(), Err: err}
	}

	if cfg.Jobs < 1 || cfg.Jobs > MaxJobs {
		return fail(fmt.Errorf("%w: jobs must be between 1 and %d (got %d)", ErrConfig, MaxJobs, cfg.Jobs))
	}
	if cfg.Paths == nil && len(cfg.Roots) == 0 {
		return fail(fmt.Errorf("%w: no paths to scan", ErrConfig))
	}

	p := cfg.Pipeline
	if p == nil {
		p = discriminant.DefaultPipeline()
	}
	p, notes, err := discriminant.Normalize(p, cfg.Link == LinkHard)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrConfig, err))
	}
	for _, n := range notes {
		r.log.Warn(n)
	}
	r.pipeline = p
	r.log.Debug("pipeline", "stages", p.String(), "link", cfg.Link.String(), "dry_run", cfg.DryRun,
		"read", cfg.Digests.Config().String(), "filtered", !cfg.Filter.Empty(), "minage", cfg.Filter.MinAge())

	m, err := newMerger(&cfg, r.log)
	if err != nil {
		return fail(err)
	}

	emitEvent(cfg.Events, event.Event{Type: event.ScanStarted})
	var cands []Candidate
	if cfg.Paths != nil {
		cands, err = r.readCandidates(ctx)
	} else {
		cands, err = r.scanCandidates(ctx)
	}
	if err != nil {
		return fail(err)
	}
	var total int64
	for _, c := range cands {
		total += c.Meta.Size
	}
	emitEvent(cfg.Events, event.Event{Type: event.ScanComplete, Total: int64(len(cands)), TotalSize: total})
	r.log.Info("candidates", "files", len(cands), "bytes", total)

	if err := r.admit(cands); err != nil {
		return fail(err)
	}
	if cfg.OpenOutputs != nil {
		out, err := cfg.OpenOutputs()
		if err != nil {
			return fail(fmt.Errorf("%w: %w", ErrConfig, err))
		}
		cfg.Report, cfg.Journal = out.Report, out.Journal
		if cfg.Journal != nil {
			r.log.Debug("journal", "path", cfg.Journal.Path())
		}
	}

	state := &RunState{}
	groups, err := r.cluster(ctx, state, cands)
	if err != nil {
		return fail(err)
	}
	cfg.Stats.AddClusters(int64(len(groups)))
	r.log.Info("duplicate groups", "groups", len(groups))

	res := Result{Groups: groups}
	for _, g := range groups {
		if err = m.mergeGroup(ctx, state, g); err != nil {
			break
		}
	}

	res.Saved = state.Saved
	res.Merged = len(m.merged)
	res.Failed = m.failed
	res.Skipped = m.skipped
	res.Dangling = m.scratch.Dangling()
	res.Err = err
	for _, d := range res.Dangling {
		r.log.Error("dangling temporary file needs manual cleanup", "scratch", d.Scratch, "action", d.String())
	}

	if cfg.Verify && !cfg.DryRun && err == nil {
		v := Verify(ctx, VerifyConfig{
			Link:    cfg.Link,
			Workers: cfg.Jobs,
			Events:  cfg.Events,
			Stats:   cfg.Stats,
		}, m.merged)
		for _, e := range v.Errors {
			r.log.Error("verify failed", "path", e.Path, "base", e.Base, "error", e.Err)
		}
		res.Verify = &v
	}

	res.Stats = cfg.Stats.Snapshot()
	return res
}
