package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/garana/filededup/internal/stats"
)

// plainPresenter writes one line per notable event and periodic progress.
// It is used when output is not a terminal.
type plainPresenter struct {
	w        io.Writer
	stats    stats.ReadTicker
	stages   int
	verbose  bool
	interval time.Duration

	stage int
}

func (p *plainPresenter) Run(events <-chan Event) error {
	interval := p.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-secTicker.C:
			p.stats.Tick()
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case ScanComplete:
		fmt.Fprintf(p.w, "found %s candidates (%s)\n", FormatCount(ev.Total), FormatBytes(ev.TotalSize))
	case StageStarted:
		p.stage = ev.Stage
	case StageCompleted:
		fmt.Fprintf(p.w, "stage %d/%d: %s clusters\n", ev.Stage+1, p.stages, FormatCount(int64(ev.Clusters)))
	case FileFailed:
		fmt.Fprintf(p.w, "error: %s: %s\n", ev.Path, errText(ev.Error))
	case MergeCompleted:
		if p.verbose {
			fmt.Fprintf(p.w, "merged: %s -> %s  saved %s\n", ev.Path, ev.Base, FormatBytes(ev.Size))
		}
	case MergeFailed:
		fmt.Fprintf(p.w, "FAILED: %s: %s\n", ev.Path, errText(ev.Error))
	case VerifyStarted:
		fmt.Fprintln(p.w, "verifying...")
	case VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s\n", ev.Path)
	case ScanStarted, FileSkipped, MergeSkipped, VerifyOK:
		// silent in plain mode
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	fmt.Fprintf(p.w, "progress: stage %d/%d  digested %s %s  merged %s  saved %s\n",
		p.stage+1, p.stages,
		FormatBytes(snap.BytesDigested), FormatRate(p.stats.RollingSpeed(10)),
		FormatCount(snap.FilesMerged), FormatBytes(snap.BytesSaved),
	)
}

func (p *plainPresenter) Summary() string {
	return completionSummary(p.stats.Snapshot())
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}
