package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/garana/filededup/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

// hudPresenter prints notable events as a scrolling feed on the terminal
// with a 2-line HUD below it that redraws in place.
type hudPresenter struct {
	w       io.Writer
	stats   stats.ReadTicker
	stages  int
	verbose bool

	stage       int
	clusters    int
	hudDrawn    bool
	lastHUDDraw time.Time
}

const (
	sparklineWidth   = 20
	progressBarWidth = 20
	hudLines         = 2
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

func (p *hudPresenter) Run(events <-chan Event) error {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Redraw while a long digest produces no events.
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()
		case <-redrawTicker.C:
			p.drawHUD()
		case <-secTicker.C:
			p.stats.Tick()
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case StageStarted:
		p.stage = ev.Stage
	case StageCompleted:
		p.clusters = ev.Clusters
	case FileFailed:
		p.feed(fmt.Sprintf("✗  %s  %s", p.styledPath(ev.Path), errText(ev.Error)))
	case MergeCompleted:
		if p.verbose {
			p.feed(fmt.Sprintf("✓  %s  %s→ %s%s  %s",
				p.styledPath(ev.Path), ansiDim, ev.Base, ansiReset, FormatBytes(ev.Size)))
		}
	case MergeFailed:
		p.feed(fmt.Sprintf("✗  %s  %s", p.styledPath(ev.Path), errText(ev.Error)))
	case VerifyStarted:
		p.feed(ansiDim + "verifying links..." + ansiReset)
	case VerifyFailed:
		p.feed(fmt.Sprintf("✗  %s  NOT LINKED", p.styledPath(ev.Path)))
	case ScanStarted, ScanComplete, FileSkipped, MergeSkipped, VerifyOK:
	}
}

// feed prints one line above the HUD.
func (p *hudPresenter) feed(line string) {
	p.clearHUD()
	fmt.Fprintln(p.w, line)
	p.drawHUD()
}

func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()
	p.clearHUD()

	var pct float64
	if p.stages > 0 {
		pct = float64(p.stage) / float64(p.stages)
	}

	// Line 1: digest throughput.
	spark := Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)
	fmt.Fprintf(p.w, "       %s   %s   %s digested\n",
		spark, FormatRate(p.stats.RollingSpeed(10)), FormatBytes(snap.BytesDigested))

	// Line 2: stage progress and merge totals.
	fmt.Fprintf(p.w, " %d/%d   %s   %s clusters   %s merged   %s saved\n",
		min(p.stage+1, max(p.stages, 1)), p.stages, ProgressBar(pct, progressBarWidth),
		FormatCount(int64(p.clusters)), FormatCount(snap.FilesMerged), FormatBytes(snap.BytesSaved))

	p.hudDrawn = true
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", hudLines)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return completionSummary(p.stats.Snapshot())
}

// styledPath returns the path with the directory portion dimmed so the
// file name stands out.
func (p *hudPresenter) styledPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "." || dir == "" {
		return base
	}
	return fmt.Sprintf("%s%s/%s%s", ansiDim, dir, ansiReset, base)
}
