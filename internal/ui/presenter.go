package ui

import (
	"io"
	"time"

	"github.com/garana/filededup/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	// Writer receives all presenter output; normally stderr.
	Writer io.Writer
	Stats  stats.ReadTicker
	// Stages is the number of pipeline stages, for progress display.
	Stages  int
	IsTTY   bool
	Quiet   bool
	Verbose bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	if !cfg.IsTTY {
		return &plainPresenter{
			w:        cfg.Writer,
			stats:    cfg.Stats,
			stages:   cfg.Stages,
			verbose:  cfg.Verbose,
			interval: 5 * time.Second,
		}
	}
	return &hudPresenter{
		w:       cfg.Writer,
		stats:   cfg.Stats,
		stages:  cfg.Stages,
		verbose: cfg.Verbose,
	}
}
