// Package task defines the opaque, clonable unit of scheduled work.
package task

import (
	"github.com/mweyns/unshacled/internal/component"
	"github.com/mweyns/unshacled/internal/modeldata"
)

// Closure is the user-supplied body of a task. It may call Get/Set/
// GetOrCreate on data, and is only permitted to touch components named in
// its own read/write sets - a caller-side convention the core does not
// enforce at runtime.
type Closure func(data *modeldata.Store)

// Task is an opaque, clonable unit of work: a closure plus its read-set,
// write-set and priority.
type Task struct {
	closure  Closure
	reads    component.Set
	writes   component.Set
	priority int
}

// New builds a task. priority defaults to 0 when the variadic argument is
// omitted; higher priorities run first.
func New(closure Closure, reads, writes component.Set, priority ...int) *Task {
	p := 0
	if len(priority) > 0 {
		p = priority[0]
	}
	return &Task{closure: closure, reads: reads, writes: writes, priority: p}
}

// Clone returns a task sharing this one's closure reference and copying its
// read/write/priority annotations, so identical work can be scheduled more
// than once.
func (t *Task) Clone() *Task {
	return &Task{
		closure:  t.closure,
		reads:    t.reads.Union(component.NewSet()),
		writes:   t.writes.Union(component.NewSet()),
		priority: t.priority,
	}
}

// Execute runs the task's closure against data.
func (t *Task) Execute(data *modeldata.Store) {
	t.closure(data)
}

// Reads returns the task's declared read-set.
func (t *Task) Reads() component.Set { return t.reads }

// Writes returns the task's declared write-set.
func (t *Task) Writes() component.Set { return t.writes }

// Priority returns the task's scheduling priority.
func (t *Task) Priority() int { return t.priority }

// WithReadsWrites returns a copy of t with a different read/write set. Used
// by the rewriter protocol to build a merged task without requiring access
// to t's closure.
func (t *Task) WithReadsWrites(reads, writes component.Set) *Task {
	return &Task{closure: t.closure, reads: reads, writes: writes, priority: t.priority}
}
