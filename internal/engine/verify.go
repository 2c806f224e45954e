package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/garana/filededup/internal/event"
	"github.com/garana/filededup/internal/platform"
	"github.com/garana/filededup/internal/stats"
)

// VerifyConfig controls the post-merge verification pass.
type VerifyConfig struct {
	Link    LinkMode
	Workers int
	Events  chan<- event.Event
	Stats   stats.Writer
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Verified int64
	Failed   int64
	Errors   []VerifyError
}

// VerifyError records a candidate that does not point at its base.
type VerifyError struct {
	Path string
	Base string
	Err  error
}

func (e VerifyError) Error() string {
	return fmt.Sprintf("%s: not linked to %s: %v", e.Path, e.Base, e.Err)
}

var (
	errNotSameInode = errors.New("different inode")
	errNotSymlink   = errors.New("not a symlink")
)

// Verify checks that each merged candidate now resolves to its base: the
// same inode for hardlinks, a symlink whose target is the base path for
// symlinks. Pairs are checked by cfg.Workers goroutines; Errors follow
// pair order.
func Verify(ctx context.Context, cfg VerifyConfig, pairs []mergedPair) VerifyResult {
	emitEvent(cfg.Events, event.Event{Type: event.VerifyStarted, Total: int64(len(pairs))})

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}

	failures := make([]error, len(pairs))
	checked := make([]bool, len(pairs))
	taskCh := make(chan int, workers*2)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range taskCh {
				p := pairs[i]
				checked[i] = true
				if err := verifyPair(cfg.Link, p); err != nil {
					failures[i] = err
					cfg.Stats.AddFilesVerifyFailed(1)
					emitEvent(cfg.Events, event.Event{Type: event.VerifyFailed, Path: p.candidate, Base: p.base, Error: err})
					continue
				}
				cfg.Stats.AddFilesVerified(1)
				emitEvent(cfg.Events, event.Event{Type: event.VerifyOK, Path: p.candidate, Base: p.base})
			}
		}()
	}

feed:
	for i := range pairs {
		select {
		case <-ctx.Done():
			break feed
		case taskCh <- i:
		}
	}
	close(taskCh)
	wg.Wait()

	// Pairs never reached because of cancellation count as neither.
	var result VerifyResult
	for i, err := range failures {
		switch {
		case !checked[i]:
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, VerifyError{Path: pairs[i].candidate, Base: pairs[i].base, Err: err})
		default:
			result.Verified++
		}
	}
	return result
}

func verifyPair(mode LinkMode, p mergedPair) error {
	switch mode {
	case LinkSymbolic:
		info, err := os.Lstat(p.candidate)
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return errNotSymlink
		}
		target, err := os.Readlink(p.candidate)
		if err != nil {
			return err
		}
		if target != p.base {
			return fmt.Errorf("points to %s", target)
		}
		return nil
	default:
		b, err := platform.Lstat(p.base)
		if err != nil {
			return err
		}
		c, err := platform.Lstat(p.candidate)
		if err != nil {
			return err
		}
		if b.DevIno != c.DevIno {
			return errNotSameInode
		}
		return nil
	}
}

func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
