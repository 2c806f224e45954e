package engine

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScratchSuffix terminates every scratch name.
const ScratchSuffix = ".fdd-tmp"

var scratchRE = regexp.MustCompile(`\.\d+\.\d+\.\d+\.[0-9a-f]{8}` + regexp.QuoteMeta(ScratchSuffix) + `$`)

// ScratchName returns the transient name that holds path's original
// content while it is swapped for a link:
// <path>.<pid>.<unix seconds>.<microseconds>.<8 hex digits>.fdd-tmp
func ScratchName(path string, pid int, now time.Time) string {
	return fmt.Sprintf("%s.%d.%d.%d.%s%s",
		path, pid, now.Unix(), now.Nanosecond()/1000, uuid.New().String()[:8], ScratchSuffix)
}

// IsScratchName reports whether path looks like a name made by ScratchName.
func IsScratchName(path string) bool {
	return scratchRE.MatchString(path)
}

// Dangling is a scratch file that a failed merge could not clean up.
type Dangling struct {
	Scratch  string
	Original string
	// Restore is set when the scratch holds the only link to the original
	// content and must be renamed back to Original. Otherwise the scratch
	// is redundant and can be removed.
	Restore bool
}

func (d Dangling) String() string {
	if d.Restore {
		return fmt.Sprintf("rename %s to %s", d.Scratch, d.Original)
	}
	return fmt.Sprintf("remove %s", d.Scratch)
}

// scratchRegistry tracks the scratch files of one run.
type scratchRegistry struct {
	mu       sync.Mutex
	live     map[string]string // scratch -> original
	dangling []Dangling
}

func newScratchRegistry() *scratchRegistry {
	return &scratchRegistry{live: make(map[string]string)}
}

func (r *scratchRegistry) register(scratch, original string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[scratch] = original
}

// release forgets a scratch whose merge sequence completed or was rolled
// back cleanly.
func (r *scratchRegistry) release(scratch string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, scratch)
}

// abandon moves a scratch to the dangling list.
func (r *scratchRegistry) abandon(d Dangling) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, d.Scratch)
	r.dangling = append(r.dangling, d)
}

// Dangling returns every abandoned scratch, followed by any still
// registered (a sequence interrupted before it could report), sorted by
// scratch name within each part.
func (r *scratchRegistry) Dangling() []Dangling {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]Dangling(nil), r.dangling...)
	var live []Dangling
	for scratch, original := range r.live {
		live = append(live, Dangling{Scratch: scratch, Original: original, Restore: true})
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Scratch < live[j].Scratch })
	return append(out, live...)
}

// danglingError is returned by a linker that failed and could not restore
// the pre-merge state.
type danglingError struct {
	Dangling
	err error
}

func (e *danglingError) Error() string {
	return fmt.Sprintf("%v (dangling scratch file: %s)", e.err, e.Dangling)
}

func (e *danglingError) Unwrap() error { return e.err }
