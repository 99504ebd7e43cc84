// Package rewrite implements the task rewriter protocol: a predicate +
// fusion pair that lets the processor coalesce adjacent compatible
// instructions before execution.
package rewrite

import "github.com/mweyns/unshacled/internal/task"

// Rewriter decides whether two adjacent tasks (first is an immediate
// predecessor of second in the DAG) can be fused, and performs the fusion.
type Rewriter interface {
	// CanMerge reports whether first and second may be coalesced.
	CanMerge(first, second *task.Task) bool
	// Merge returns a single task standing in for both. Its read-set must
	// be a superset of first.reads ∪ (second.reads − first.writes) and its
	// write-set must be first.writes ∪ second.writes.
	Merge(first, second *task.Task) *task.Task
}

// SimpleTaskRewriter wraps a bare predicate and merge function as a
// Rewriter, the common case where no extra state is needed.
type SimpleTaskRewriter struct {
	Predicate func(first, second *task.Task) bool
	Combine   func(first, second *task.Task) *task.Task
}

// New builds a SimpleTaskRewriter from a predicate and merge function.
func New(predicate func(first, second *task.Task) bool, combine func(first, second *task.Task) *task.Task) *SimpleTaskRewriter {
	return &SimpleTaskRewriter{Predicate: predicate, Combine: combine}
}

func (r *SimpleTaskRewriter) CanMerge(first, second *task.Task) bool {
	return r.Predicate(first, second)
}

func (r *SimpleTaskRewriter) Merge(first, second *task.Task) *task.Task {
	return r.Combine(first, second)
}
