package engine

import (
	"context"
	"sync"

	"github.com/garana/filededup/internal/digest"
	"github.com/garana/filededup/internal/discriminant"
	"github.com/garana/filededup/internal/stats"
)

// MaxJobs bounds the number of concurrent digest workers.
const MaxJobs = 64

type keyTask struct {
	slot int
	cand *Candidate
}

type keyResult struct {
	key discriminant.Key
	err error
}

// keyWorkerPool computes composite keys for one stage. Workers only read
// files and write to their own result slot; the cluster indices are never
// touched here.
type keyWorkerPool struct {
	stage   discriminant.Stage
	digests *digest.Engine
	stats   stats.Writer
	workers int
}

// Run consumes tasks until the channel closes or ctx is cancelled. results
// must have a slot for every task.
func (wp *keyWorkerPool) Run(ctx context.Context, tasks <-chan keyTask, results []keyResult) {
	var wg sync.WaitGroup
	for range max(wp.workers, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if err := ctx.Err(); err != nil {
					results[task.slot] = keyResult{err: err}
					continue
				}
				results[task.slot] = wp.compute(ctx, task.cand)
			}
		}()
	}
	wg.Wait()
}

func (wp *keyWorkerPool) compute(ctx context.Context, c *Candidate) keyResult {
	if !wp.stage.HasDigests() {
		return keyResult{key: discriminant.BuildKey(wp.stage, c.Meta, c.Path, nil)}
	}

	sums, n, err := wp.digests.Sum(ctx, c.Path, wp.stage.Digests, wp.stage.End)
	wp.stats.AddBytesDigested(n)
	if err != nil {
		return keyResult{err: err}
	}
	wp.stats.AddFilesDigested(1)
	return keyResult{key: discriminant.BuildKey(wp.stage, c.Meta, c.Path, &sums)}
}

// computeKeys returns one result per task, in task order.
func (wp *keyWorkerPool) computeKeys(ctx context.Context, cands []*Candidate) []keyResult {
	results := make([]keyResult, len(cands))
	if !wp.stage.HasDigests() {
		// Metadata-only keys never touch the file.
		for i, c := range cands {
			results[i] = wp.compute(ctx, c)
		}
		return results
	}

	tasks := make(chan keyTask, max(wp.workers, 1)*2)
	go func() {
		defer close(tasks)
		for i, c := range cands {
			select {
			case tasks <- keyTask{slot: i, cand: c}:
			case <-ctx.Done():
				for j := i; j < len(cands); j++ {
					results[j] = keyResult{err: ctx.Err()}
				}
				return
			}
		}
	}()
	wp.Run(ctx, tasks, results)
	return results
}
