// Package dag implements the out-of-order processor: the dependency graph
// of scheduled instructions, the time-capsule-backed execution of each
// instruction's task exactly once, and the transfer of results between
// dependent instructions.
package dag

import (
	"github.com/mweyns/unshacled/internal/capsule"
	"github.com/mweyns/unshacled/internal/component"
	"github.com/mweyns/unshacled/internal/modeldata"
	"github.com/mweyns/unshacled/internal/task"
)

// Instruction is a task placed in the dependency graph: its own private
// data store and time capsule, the predecessors it is still waiting on,
// and the successors it feeds once it retires.
//
// Each instruction gets a private Store forked from the processor's
// baseline at schedule time, and a two-instant capsule wrapping it. The
// capsule's root instant represents "not yet executed"; its one child,
// post, represents "executed". Acquiring post for the first time runs the
// task's closure for real, via Store.BeginRecording, so the processor can
// recover the deltas (for the undo side, never exercised by the processor
// itself but preserved so the capsule remains a genuine time capsule) and
// the written-component set (for baseline commit and Notify).
type Instruction struct {
	index int32
	task  *task.Task

	store *modeldata.Store
	caps  *capsule.Capsule
	root  *capsule.Instant
	post  *capsule.Instant

	// dependencies maps a predecessor instruction to the components that
	// predecessor still needs to supply before this instruction is
	// eligible. An instruction is ready exactly when this map is empty.
	dependencies map[*Instruction]component.Set
	// successors is the set of instructions waiting on this one.
	successors map[*Instruction]struct{}

	executed     bool
	executionErr error
	written      component.Set
	deltas       []modeldata.Delta
}

// newInstruction builds an instruction around task t, using store as its
// private snapshot buffer (the caller decides whether that's a fresh fork
// of the baseline, for a newly scheduled task, or a reused buffer from a
// fused-away predecessor). The capsule's redo closure is lazy: it does not
// run t's closure until first acquired.
func newInstruction(index int32, t *task.Task, store *modeldata.Store) *Instruction {
	in := &Instruction{
		index:        index,
		task:         t,
		store:        store,
		dependencies: make(map[*Instruction]component.Set),
		successors:   make(map[*Instruction]struct{}),
	}
	caps, root := capsule.Create(in.store)
	in.caps = caps
	in.root = root

	redo := func(store *modeldata.Store) {
		end := store.BeginRecording()
		defer func() {
			in.deltas = end()
			in.written = modeldata.Written(in.deltas)
			if r := recover(); r != nil {
				in.executionErr = newClosureFailure(r)
			}
			in.executed = true
		}()
		in.task.Execute(store)
	}
	undo := func(store *modeldata.Store) {
		for i := len(in.deltas) - 1; i >= 0; i-- {
			in.deltas[i].Revert(store)
		}
	}
	in.post = caps.Modify(root, redo, undo)
	return in
}

// execute acquires the instruction's post-execution instant, running the
// task's closure exactly once on first call, and returns the private store
// positioned there.
func (in *Instruction) execute() (*modeldata.Store, error) {
	data, err := in.caps.Acquire(in.post)
	if err != nil {
		return nil, err
	}
	defer in.caps.Release(in.post)
	return data, nil
}

// Index returns the instruction's schedule-order index.
func (in *Instruction) Index() int32 { return in.index }

// Priority satisfies priority.Item, ordering the ready queue.
func (in *Instruction) Priority() int { return in.task.Priority() }

// Task returns the instruction's (possibly fused) task.
func (in *Instruction) Task() *task.Task { return in.task }

// Ready reports whether every predecessor has supplied its outputs.
func (in *Instruction) Ready() bool { return len(in.dependencies) == 0 }

// addDependency records that predecessor must supply c to in before in is
// eligible, and that in is one of predecessor's successors.
func addDependency(in, predecessor *Instruction, c component.ID) {
	set, ok := in.dependencies[predecessor]
	if !ok {
		set = component.NewSet()
	}
	set.Add(c)
	in.dependencies[predecessor] = set
	predecessor.successors[in] = struct{}{}
}
