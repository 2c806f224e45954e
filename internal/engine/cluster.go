package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/garana/filededup/internal/discriminant"
	"github.com/garana/filededup/internal/event"
	"github.com/garana/filededup/internal/htable"
	"github.com/garana/filededup/internal/platform"
)

// RunState is the mutable state of one run. It is threaded through the
// stage passes and the merge phase.
type RunState struct {
	// Stage is the index of the active stage; it equals the stage count
	// once clustering is done.
	Stage int
	// Saved accumulates the bytes reclaimed by merging.
	Saved int64
}

const (
	parentSize = 8
	handleSize = 4
)

type fileRecord struct {
	cand    *Candidate
	cluster int32
}

type cluster struct {
	// key is owned by the index entry of the cluster's first member.
	key     discriminant.Key
	members []int32
}

// stageArena owns every record and cluster created during one stage.
// Dropping the arena drops the stage.
type stageArena struct {
	files    []fileRecord
	clusters []cluster
	// byKey maps parent||composite key to a cluster handle.
	byKey *htable.Table
	// byDevIno maps parent||dev||ino to the handle of the first file seen
	// with that identity.
	byDevIno *htable.Table
}

func newStageArena(n int) *stageArena {
	return &stageArena{
		files:    make([]fileRecord, 0, n),
		byKey:    htable.New(n),
		byDevIno: htable.New(n),
	}
}

func putHandle(h int32) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, handleSize), uint32(h)) //nolint:gosec // G115: handles are non-negative
}

func getHandle(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b)) //nolint:gosec // G115: round trip of putHandle
}

func devInoKey(parent int, d platform.DevIno) []byte {
	b := make([]byte, 0, parentSize+16)
	b = binary.LittleEndian.AppendUint64(b, uint64(parent)) //nolint:gosec // G115: parent is an index
	return append(b, d.Bytes()...)
}

func (a *stageArena) addFile(c *Candidate, cl int32) int32 {
	h := int32(len(a.files)) //nolint:gosec // G115: bounded by input size
	a.files = append(a.files, fileRecord{cand: c, cluster: cl})
	a.clusters[cl].members = append(a.clusters[cl].members, h)
	return h
}

// stageInput is one propagated cluster: the candidates that shared a key at
// the previous stage, in insertion order.
type stageInput [][]*Candidate

// runStage clusters every member of in by the key of stage and returns the
// clusters with at least two members, in creation order.
func (r *runner) runStage(ctx context.Context, state *RunState, stage discriminant.Stage, in stageInput) (stageInput, error) {
	var total int
	for _, g := range in {
		total += len(g)
	}
	emitEvent(r.cfg.Events, event.Event{Type: event.StageStarted, Stage: state.Stage, Total: int64(total)})
	r.log.Debug("stage started", "stage", state.Stage, "discriminant", stage.String(),
		"clusters", len(in), "files", total)

	arena := newStageArena(total)

	// Hardlinks of a file seen earlier in the same parent cluster reuse its
	// key, so only the first path of each inode is digested.
	leaders := htable.New(total)
	var work []*Candidate
	var slots []int
	for gi, g := range in {
		for _, c := range g {
			if c.Meta.Size == 0 {
				slots = append(slots, -1)
				continue
			}
			if leaders.Add(devInoKey(gi, c.Meta.DevIno), nil) {
				slots = append(slots, len(work))
				work = append(work, c)
			} else {
				slots = append(slots, -1)
			}
		}
	}

	pool := &keyWorkerPool{
		stage:   stage,
		digests: r.cfg.Digests,
		stats:   r.cfg.Stats,
		workers: r.cfg.Jobs,
	}
	results := pool.computeKeys(ctx, work)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i := 0
	for gi, g := range in {
		for _, c := range g {
			slot := slots[i]
			i++
			if c.Meta.Size == 0 {
				r.log.Debug("empty file, ignoring", "path", c.Path)
				continue
			}
			if err := r.insert(arena, gi, c, slot, results); err != nil {
				return nil, err
			}
		}
	}

	var out stageInput
	for _, cl := range arena.clusters {
		if len(cl.members) < 2 {
			continue
		}
		members := make([]*Candidate, len(cl.members))
		for j, h := range cl.members {
			members[j] = arena.files[h].cand
		}
		out = append(out, members)
		if r.cfg.TraceKeys {
			r.log.Debug("surviving cluster", "stage", state.Stage, "first", members[0].Path,
				"members", len(members), "key", cl.key.String(), "key_len", cl.key.Len())
		}
	}

	emitEvent(r.cfg.Events, event.Event{Type: event.StageCompleted, Stage: state.Stage, Clusters: len(out)})
	r.log.Debug("stage completed", "stage", state.Stage,
		"clusters", len(arena.clusters), "surviving", len(out),
		"key_chains", arena.byKey.ChainHistogram(4))
	return out, nil
}

// insert files one candidate into the arena. It is only ever called from
// the goroutine running the stage.
func (r *runner) insert(a *stageArena, parent int, c *Candidate, slot int, results []keyResult) error {
	dk := devInoKey(parent, c.Meta.DevIno)

	if v, ok := a.byDevIno.Find(dk); ok {
		leader := a.files[getHandle(v)]
		a.addFile(c, leader.cluster)
		r.log.Debug("found in devino", "path", c.Path, "size", c.Meta.Size,
			"dev", c.Meta.DevIno.Dev, "ino", c.Meta.DevIno.Ino)
		return nil
	}
	if slot < 0 {
		// The inode's first path failed to produce a key.
		r.log.Debug("hardlink of a failed file, ignoring", "path", c.Path)
		return nil
	}

	res := results[slot]
	if res.err != nil {
		r.fileFailed(c.Path, res.err)
		return nil
	}

	full := make([]byte, parentSize, parentSize+len(res.key))
	binary.LittleEndian.PutUint64(full, uint64(parent)) //nolint:gosec // G115: parent is an index
	full = append(full, res.key...)

	attrs := []any{"path", c.Path, "size", c.Meta.Size, "dev", c.Meta.DevIno.Dev, "ino", c.Meta.DevIno.Ino}
	if r.cfg.TraceKeys {
		attrs = append(attrs, "key", res.key.String())
	}

	if v, ok := a.byKey.Find(full); ok {
		h := a.addFile(c, getHandle(v))
		a.byDevIno.AddOwned(dk, putHandle(h))
		r.log.Debug("added to cluster", attrs...)
		return nil
	}

	cl := int32(len(a.clusters)) //nolint:gosec // G115: bounded by input size
	a.clusters = append(a.clusters, cluster{key: discriminant.Key(full[parentSize:])})
	h := a.addFile(c, cl)
	if !a.byKey.AddOwned(full, putHandle(cl)) {
		return fmt.Errorf("%w: key of %s indexed twice", ErrInternal, c.Path)
	}
	a.byDevIno.AddOwned(dk, putHandle(h))
	r.log.Debug("new cluster", attrs...)
	return nil
}

// cluster runs every stage and returns the final duplicate groups.
func (r *runner) cluster(ctx context.Context, state *RunState, cands []Candidate) ([]Group, error) {
	input := make([]*Candidate, len(cands))
	for i := range cands {
		input[i] = &cands[i]
	}
	groups := stageInput{input}

	for state.Stage = 0; state.Stage < len(r.pipeline); state.Stage++ {
		if len(groups) == 0 {
			r.log.Debug("no clusters left, skipping remaining stages", "stage", state.Stage)
			state.Stage = len(r.pipeline)
			break
		}
		next, err := r.runStage(ctx, state, r.pipeline[state.Stage], groups)
		if err != nil {
			return nil, err
		}
		groups = next
	}

	out := make([]Group, len(groups))
	for i, g := range groups {
		members := make([]Candidate, len(g))
		for j, c := range g {
			members[j] = *c
		}
		out[i] = Group{Members: members}
	}
	if r.log.Enabled(ctx, slog.LevelDebug) {
		for _, g := range out {
			r.log.Debug("duplicate group", "base", g.Members[0].Path, "members", len(g.Members))
		}
	}
	return out, nil
}
