package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/garana/filededup/internal/config"
	"github.com/garana/filededup/internal/digest"
	"github.com/garana/filededup/internal/discriminant"
	"github.com/garana/filededup/internal/engine"
	"github.com/garana/filededup/internal/event"
	"github.com/garana/filededup/internal/filter"
	"github.com/garana/filededup/internal/platform"
	"github.com/garana/filededup/internal/report"
	"github.com/garana/filededup/internal/stats"
	"github.com/garana/filededup/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

var _ pflag.Value = (*filterFlag)(nil)

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude, --include and --exclude-from rules by appending to a shared
// filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
	file    bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	switch {
	case f.file:
		return f.chain.LoadFile(val)
	case f.include:
		return f.chain.AddInclude(val)
	default:
		return f.chain.AddExclude(val)
	}
}

// options holds every root command flag.
type options struct {
	nul         bool
	minAge      string
	evals       []string
	hardLink    bool
	symLink     bool
	showMerge   string
	showMerge0  string
	dryRun      bool
	nice        int
	ionice      string
	cgroups     []string
	verbose     int
	quiet       bool
	jobs        int
	read        string
	minSize     string
	maxSize     string
	bwLimit     string
	journal     string
	verify      bool
	logFile     string
	showVersion bool

	chain *filter.Chain
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := &options{chain: filter.NewChain()}

	rootCmd := &cobra.Command{
		Use:   "filededup [flags] [path]...",
		Short: "Find duplicate files and replace them with links",
		Long: `filededup clusters candidate files through a pipeline of stages, each
refining the clusters of the previous one by metadata and content digests,
then replaces every duplicate with a hard or symbolic link to the first
member of its cluster.

Paths given as arguments are traversed recursively. Without arguments,
newline-delimited paths are read from standard input (NUL-delimited with --0).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(stdout, "filededup %s\n", version)
				return nil
			}
			return runDedup(cmd, args, opts, stdin, stdout, stderr)
		},
	}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	bindFlags(rootCmd.Flags(), opts)

	rootCmd.MarkFlagsMutuallyExclusive("hard-link", "symbolic-link")
	rootCmd.MarkFlagsMutuallyExclusive("show-merge", "show-merge-0")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(newRecoverCmd(stdout))
	rootCmd.AddCommand(newDocsCmd())

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// bindFlags registers the root command flags on f.
func bindFlags(f *pflag.FlagSet, opts *options) {
	f.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	f.BoolVar(&opts.nul, "0", false, "read NUL-delimited paths from standard input")
	f.StringVarP(&opts.minAge, "minage", "m", "", "skip files modified less than AGE ago (units s,m,h,d,w,M,Y)")
	f.StringArrayVarP(&opts.evals, "eval", "e", nil,
		"add a pipeline stage, e.g. size,dev or sha1:4096 (repeatable; replaces the default pipeline)")
	f.BoolVarP(&opts.hardLink, "hard-link", "H", false, "merge with hard links (default)")
	f.BoolVarP(&opts.symLink, "symbolic-link", "L", false, "merge with symbolic links")
	f.StringVarP(&opts.showMerge, "show-merge", "o", "", "write newline-separated duplicate groups to FILE")
	f.StringVarP(&opts.showMerge0, "show-merge-0", "O", "", "write NUL-separated duplicate groups to FILE")
	f.BoolVarP(&opts.dryRun, "dry-run", "n", false, "report what would be merged without changing anything")
	f.IntVarP(&opts.nice, "nice", "N", 0, "set the process nice value")
	f.StringVarP(&opts.ionice, "ionice", "i", "", "set the I/O class: none, idle, rt[,DATA] or be[,DATA]")
	f.StringArrayVarP(&opts.cgroups, "cgroup", "c", nil, "join the cgroup at DIR (repeatable)")
	f.CountVarP(&opts.verbose, "verbose", "v", "verbose output (-vv adds composite keys)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except warnings and errors")
	f.IntVarP(&opts.jobs, "jobs", "j", 1, fmt.Sprintf("number of concurrent digest workers (1-%d)", engine.MaxJobs))
	f.StringVarP(&opts.read, "read", "R", "", "read policy: read|mmap[,BUFSIZE] (default mmap,16777216)")
	f.Var(&filterFlag{chain: opts.chain}, "exclude", "exclude files matching PATTERN (repeatable)")
	f.Var(&filterFlag{chain: opts.chain, include: true}, "include", "include files matching PATTERN (repeatable)")
	f.Var(&filterFlag{chain: opts.chain, file: true}, "exclude-from", "read filter rules from FILE")
	f.StringVar(&opts.minSize, "min-size", "", "skip files smaller than SIZE (e.g. 4k, 1M)")
	f.StringVar(&opts.maxSize, "max-size", "", "skip files larger than SIZE (e.g. 1G)")
	f.StringVar(&opts.bwLimit, "bwlimit", "", "limit digest reads to SIZE bytes per second")
	f.StringVar(&opts.journal, "journal", "", "record in-flight merges in the SQLite database FILE")
	f.BoolVar(&opts.verify, "verify", false, "check every merged file after merging")
	f.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: wires every flag into the run
func runDedup(cmd *cobra.Command, args []string, opts *options, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", config.Path(), err)
	}
	applyConfigDefaults(cmd, cfg.Defaults, opts)

	// Configure logging.
	logLevel := slog.LevelInfo
	switch {
	case opts.quiet:
		logLevel = slog.LevelWarn
	case opts.verbose > 0:
		logLevel = slog.LevelDebug
	}
	textHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel})
	var logHandler slog.Handler = textHandler
	if opts.logFile != "" {
		lf, lfErr := os.Create(opts.logFile)
		if lfErr != nil {
			return fmt.Errorf("open log file: %w", lfErr)
		}
		defer lf.Close()
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	for _, k := range cfg.Unknown {
		logger.Warn("unknown config key", "key", k, "file", config.Path())
	}

	engineCfg, err := buildEngineConfig(cmd, cfg, opts)
	if err != nil {
		return err
	}
	engineCfg.Logger = logger
	engineCfg.TraceKeys = opts.verbose > 1

	switch {
	case len(args) > 0 && opts.nul:
		return errors.New("--0 reads paths from standard input and cannot be combined with path arguments")
	case len(args) > 0:
		engineCfg.Roots = args
	default:
		engineCfg.Paths = stdin
		engineCfg.Delim = '\n'
		if opts.nul {
			engineCfg.Delim = 0
		}
	}

	// Process tuning happens before any file is touched.
	if cmd.Flags().Changed("nice") {
		if err := platform.SetNice(opts.nice); err != nil {
			return err
		}
	}
	if opts.ionice != "" {
		prio, err := platform.ParseIONice(opts.ionice)
		if err != nil {
			return err
		}
		if err := platform.SetIONice(prio); err != nil {
			return err
		}
	}
	for _, dir := range opts.cgroups {
		if err := platform.JoinCgroup(dir); err != nil {
			return err
		}
	}

	// The report and the journal are created only once the engine has
	// accepted every candidate.
	var (
		rw  *report.Writer
		jnl *engine.Journal
	)
	defer func() {
		if rw != nil {
			rw.Close()
		}
		if jnl != nil {
			jnl.Close()
		}
	}()
	engineCfg.OpenOutputs = func() (engine.Outputs, error) {
		var out engine.Outputs
		w, err := openReport(opts)
		if err != nil {
			return out, err
		}
		if w != nil {
			rw = w
			out.Report = w
		}
		if opts.journal != "" && !opts.dryRun {
			j, err := engine.OpenJournal(opts.journal)
			if err != nil {
				return out, err
			}
			jnl = j
			out.Journal = j
		}
		return out, nil
	}

	if opts.dryRun {
		logger.Info("dry run mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	engineCfg.Stats = collector
	events := make(chan event.Event, 256)
	engineCfg.Events = events

	// When --log is set, tee events through a logging goroutine that writes
	// structured records before forwarding to the presenter.
	presenterEvents := (<-chan event.Event)(events)
	if opts.logFile != "" {
		teed := make(chan event.Event, 256)
		go func() {
			for ev := range events {
				attrs := []slog.Attr{
					slog.String("type", ev.Type.String()),
					slog.String("path", ev.Path),
					slog.Int64("size", ev.Size),
				}
				if ev.Base != "" {
					attrs = append(attrs, slog.String("base", ev.Base))
				}
				if ev.Error != nil {
					attrs = append(attrs, slog.String("error", ev.Error.Error()))
				}
				logger.LogAttrs(context.Background(), slog.LevelDebug, "filededup.event", attrs...)
				teed <- ev
			}
			close(teed)
		}()
		presenterEvents = teed
	}

	stages := len(engineCfg.Pipeline)
	if stages == 0 {
		stages = len(discriminant.DefaultPipeline())
	}
	presenter := ui.NewPresenter(ui.Config{
		Writer:  stderr,
		Stats:   collector,
		Stages:  stages,
		IsTTY:   isTTY(stderr),
		Quiet:   opts.quiet,
		Verbose: opts.verbose > 0,
	})

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	result := engine.Run(ctx, engineCfg)
	stop()
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(stderr, "presenter: %v\n", presenterErr)
	}

	if errors.Is(result.Err, engine.ErrConfig) {
		return result.Err
	}
	fmt.Fprintf(stdout, "saved=%d\n", result.Saved)
	logger.Debug("run finished", "stats", result.Stats.String())
	if errors.Is(result.Err, context.Canceled) {
		return fmt.Errorf("interrupted: %w", result.Err)
	}
	if result.Err != nil {
		return result.Err
	}
	if !opts.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(stderr, summary)
		}
	}

	return &exitError{code: exitCode(result)}
}

// buildEngineConfig turns flags and config file defaults into an engine
// configuration. Every error it returns is a configuration error.
func buildEngineConfig(cmd *cobra.Command, cfg config.Config, opts *options) (engine.Config, error) {
	var ec engine.Config

	stages := opts.evals
	if len(stages) == 0 {
		stages = cfg.Defaults.Stages
	}
	if len(stages) > 0 {
		p, err := discriminant.ParsePipeline(stages)
		if err != nil {
			return ec, err
		}
		ec.Pipeline = p
	}

	switch {
	case opts.symLink:
		ec.Link = engine.LinkSymbolic
	case opts.hardLink:
		ec.Link = engine.LinkHard
	case cfg.Defaults.Link != nil:
		mode, err := engine.ParseLinkMode(*cfg.Defaults.Link)
		if err != nil {
			return ec, err
		}
		ec.Link = mode
	}

	readCfg := digest.DefaultReadConfig()
	if opts.read != "" {
		rc, adjusted, err := digest.ParseReadConfig(opts.read)
		if err != nil {
			return ec, fmt.Errorf("invalid --read: %w", err)
		}
		if adjusted {
			slog.Debug("read buffer rounded up to a multiple of the page size", "size", rc.BufSize)
		}
		readCfg = rc
	}
	var digestOpts []digest.Option
	if opts.bwLimit != "" {
		n, err := filter.ParseSize(opts.bwLimit)
		if err != nil {
			return ec, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		if n > 0 {
			digestOpts = append(digestOpts, digest.WithLimiter(digest.NewBWLimiter(n)))
		}
	}
	ec.Digests = digest.NewEngine(readCfg, digestOpts...)

	if err := buildFilter(cmd, cfg.Filter, opts); err != nil {
		return ec, err
	}
	ec.Filter = opts.chain

	ec.DryRun = opts.dryRun
	ec.Verify = opts.verify
	ec.Jobs = opts.jobs
	return ec, nil
}

// buildFilter completes the chain built from the command line: config file
// rules are appended after the command line ones, so the command line
// decides first.
func buildFilter(cmd *cobra.Command, fc config.FilterConfig, opts *options) error {
	for _, p := range fc.Include {
		if err := opts.chain.AddInclude(p); err != nil {
			return fmt.Errorf("config include %q: %w", p, err)
		}
	}
	for _, p := range fc.Exclude {
		if err := opts.chain.AddExclude(p); err != nil {
			return fmt.Errorf("config exclude %q: %w", p, err)
		}
	}

	if !cmd.Flags().Changed("min-size") && fc.MinSize != nil {
		opts.minSize = *fc.MinSize
	}
	if !cmd.Flags().Changed("max-size") && fc.MaxSize != nil {
		opts.maxSize = *fc.MaxSize
	}
	if opts.minSize != "" {
		n, err := filter.ParseSize(opts.minSize)
		if err != nil {
			return fmt.Errorf("invalid --min-size: %w", err)
		}
		opts.chain.SetMinSize(n)
	}
	if opts.maxSize != "" {
		n, err := filter.ParseSize(opts.maxSize)
		if err != nil {
			return fmt.Errorf("invalid --max-size: %w", err)
		}
		opts.chain.SetMaxSize(n)
	}

	if opts.minAge != "" {
		d, err := filter.ParseAge(opts.minAge)
		if err != nil {
			return fmt.Errorf("invalid --minage: %w", err)
		}
		opts.chain.SetMinAge(d, time.Now())
	}
	return nil
}

func openReport(opts *options) (*report.Writer, error) {
	switch {
	case opts.showMerge != "":
		return report.Create(opts.showMerge, '\n')
	case opts.showMerge0 != "":
		return report.Create(opts.showMerge0, 0)
	default:
		return nil, nil
	}
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, opts *options) {
	if !cmd.Flags().Changed("verify") && defaults.Verify != nil {
		opts.verify = *defaults.Verify
	}
	if !cmd.Flags().Changed("jobs") && defaults.Jobs != nil {
		opts.jobs = *defaults.Jobs
	}
	if !cmd.Flags().Changed("read") && defaults.Read != nil {
		opts.read = *defaults.Read
	}
	if !cmd.Flags().Changed("minage") && defaults.MinAge != nil {
		opts.minAge = *defaults.MinAge
	}
	if !cmd.Flags().Changed("bwlimit") && defaults.BWLimit != nil {
		opts.bwLimit = *defaults.BWLimit
	}
	if !cmd.Flags().Changed("journal") && defaults.Journal != nil {
		opts.journal = *defaults.Journal
	}
}

// exitCode maps a run result to the process exit status: 0 when every
// duplicate was merged, 1 when some merges or verifications failed, 2 when
// the run could not complete.
func exitCode(res engine.Result) int {
	switch {
	case res.Err != nil:
		return 2
	case res.Failed > 0, len(res.Dangling) > 0:
		return 1
	case res.Verify != nil && res.Verify.Failed > 0:
		return 1
	default:
		return 0
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && ui.IsTTY(f.Fd())
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
