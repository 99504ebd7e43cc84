package dag

import (
	"github.com/mweyns/unshacled/internal/component"
	"github.com/mweyns/unshacled/internal/modeldata"
	"github.com/mweyns/unshacled/internal/priority"
	"github.com/mweyns/unshacled/internal/rewrite"
	"github.com/mweyns/unshacled/internal/task"
)

// Processor is the out-of-order scheduler: a single externally-visible
// baseline store, the dependency graph built by Schedule, the
// priority-partitioned ready queue, and the registered rewriters consulted
// before each instruction executes.
//
// A Processor is not safe for concurrent use. It is meant to be driven by
// one goroutine at a time: scheduling is single-threaded and cooperative,
// and a task closure always runs to completion before the next dequeue.
type Processor struct {
	baseline *modeldata.Store

	latestWriter map[component.ID]*Instruction
	latestReader map[component.ID]*Instruction

	ready *priority.Queue[*Instruction]
	// pending holds every instruction that has been scheduled but not yet
	// retired, whether or not it is currently sitting in ready.
	pending map[*Instruction]struct{}

	rewriters []rewrite.Rewriter

	nextIndex int32
	fused     int64
}

// New returns a processor whose externally-visible model is baseline.
// baseline is read at schedule time (to fork each instruction's private
// snapshot) and written at retire time (via SetUnchecked, followed by a
// Notify of the components that instruction actually wrote).
func New(baseline *modeldata.Store) *Processor {
	return &Processor{
		baseline:     baseline,
		latestWriter: make(map[component.ID]*Instruction),
		latestReader: make(map[component.ID]*Instruction),
		ready:        priority.NewQueue[*Instruction](),
		pending:      make(map[*Instruction]struct{}),
	}
}

// RegisterRewriter adds r to the list consulted, in registration order,
// when deciding whether two adjacent instructions can be fused.
func (p *Processor) RegisterRewriter(r rewrite.Rewriter) {
	p.rewriters = append(p.rewriters, r)
}

// IsEmpty reports whether every scheduled instruction has retired.
func (p *Processor) IsEmpty() bool {
	return len(p.pending) == 0
}

// ReadyDepth returns the number of instructions currently eligible to run,
// for telemetry.RegisterReadyQueueDepth.
func (p *Processor) ReadyDepth() int {
	return p.ready.Len()
}

// FusedCount returns the total number of rewriter fusions applied over
// this processor's lifetime, for the flow.rewrites.fused counter.
func (p *Processor) FusedCount() int64 {
	return p.fused
}

func (p *Processor) allocIndex() int32 {
	idx := p.nextIndex
	p.nextIndex++
	if p.nextIndex < 0 {
		p.nextIndex = 0
	}
	return idx
}

// Schedule places t in the dependency graph: write-after-read edges from
// t's write-set against the latest reader of each component, true
// data-dependency edges from t's read-set against the latest writer of
// each component, then t's read/write-sets update the latest-reader/
// latest-writer maps. Write-after-write is not tracked: two tasks writing
// the same component with no intervening read are independent. An
// instruction with no dependencies is enqueued immediately.
func (p *Processor) Schedule(t *task.Task) *Instruction {
	in := newInstruction(p.allocIndex(), t, p.baseline.Fork())
	p.pending[in] = struct{}{}

	for c := range t.Writes() {
		if reader, ok := p.latestReader[c]; ok && reader != p.latestWriter[c] {
			addDependency(in, reader, c)
		}
	}
	for c := range t.Reads() {
		if writer, ok := p.latestWriter[c]; ok {
			addDependency(in, writer, c)
		}
	}

	for c := range t.Writes() {
		p.latestWriter[c] = in
	}
	for c := range t.Reads() {
		p.latestReader[c] = in
	}

	if in.Ready() {
		p.ready.Enqueue(in)
	}
	return in
}

// fuseForward repeatedly tries to coalesce in with its single eligible
// successor before execution. It applies when in has exactly one
// successor s, s depends on nothing but in, and some registered rewriter
// accepts the pair; the fused instruction replaces both in the graph and
// the check repeats from there. Returns the instruction to actually
// execute - in itself if no fusion applied.
func (p *Processor) fuseForward(in *Instruction) *Instruction {
	for {
		if len(in.successors) != 1 {
			return in
		}
		var s *Instruction
		for succ := range in.successors {
			s = succ
		}
		if len(s.dependencies) != 1 {
			return in
		}
		if _, onlyDepIsIn := s.dependencies[in]; !onlyDepIsIn {
			return in
		}

		r := p.findRewriter(in.task, s.task)
		if r == nil {
			return in
		}
		in = p.fuse(in, s, r)
	}
}

func (p *Processor) findRewriter(first, second *task.Task) rewrite.Rewriter {
	for _, r := range p.rewriters {
		if r.CanMerge(first, second) {
			return r
		}
	}
	return nil
}

// fuse coalesces in and s (s is in's sole successor, dependent on nothing
// else) into a single instruction via r, splicing it into the graph in
// place of both and repointing latestWriter/latestReader.
func (p *Processor) fuse(in, s *Instruction, r rewrite.Rewriter) *Instruction {
	merged := r.Merge(in.task, s.task)

	// Reuse in's store directly as the private snapshot buffer: in and s
	// were scheduled back to back with no other instruction's retirement
	// between them, so in.store and s.store agree on every component
	// neither one depends on.
	m := newInstruction(p.allocIndex(), merged, in.store)

	m.dependencies = in.dependencies
	for pred, cs := range s.dependencies {
		if pred == in {
			continue
		}
		if existing, ok := m.dependencies[pred]; ok {
			m.dependencies[pred] = existing.Union(cs)
		} else {
			m.dependencies[pred] = cs
		}
	}
	for pred := range m.dependencies {
		delete(pred.successors, in)
		delete(pred.successors, s)
		pred.successors[m] = struct{}{}
	}

	m.successors = s.successors
	for succ := range m.successors {
		cs := succ.dependencies[s]
		delete(succ.dependencies, s)
		succ.dependencies[m] = cs
	}

	for c, w := range p.latestWriter {
		if w == in || w == s {
			p.latestWriter[c] = m
		}
	}
	for c, rd := range p.latestReader {
		if rd == in || rd == s {
			p.latestReader[c] = m
		}
	}

	delete(p.pending, in)
	delete(p.pending, s)
	p.pending[m] = struct{}{}

	p.fused++
	return m
}

// ProcessTask dequeues the next eligible instruction, fuses it forward with
// any mergeable successor chain, executes it exactly once, transfers its
// outputs to direct successors, commits its writes into the baseline
// store, and retires it. It returns false when the ready queue is
// empty - there is nothing left runnable, though isEmpty() may still be
// false if instructions remain blocked on a dependency that will never
// resolve (a caller bug, not something the processor detects).
//
// A non-nil error means the instruction's task closure panicked
// (ErrTaskClosureFailure); the instruction is still considered executed
// and the graph still advances.
func (p *Processor) ProcessTask() (bool, error) {
	in, ok := p.ready.Dequeue()
	if !ok {
		return false, nil
	}

	in = p.fuseForward(in)

	data, err := in.execute()
	if err != nil {
		// Acquisition failure against a fresh, two-instant private
		// capsule is an invariant violation, not a recoverable task
		// error; surface it as-is rather than wrapping it.
		return true, err
	}

	p.transfer(in, data)
	p.retire(in, data)

	return true, in.executionErr
}

// transfer copies each successor's dependency-supplied components out of
// in's realized private store (SetUnchecked, bypassing change tracking -
// this is the cross-instruction channel, independent of any instant-chain
// navigation), clears the now-resolved edge, and enqueues any successor
// that has become fully eligible.
func (p *Processor) transfer(in *Instruction, data *modeldata.Store) {
	for succ := range in.successors {
		p.TransferTo(in, succ, data)
		delete(succ.dependencies, in)
		if succ.Ready() {
			p.ready.Enqueue(succ)
		}
	}
}

// TransferTo copies the components source supplies to target (per
// target's dependency entry for source) directly into target's private
// store. It is exported so the processor's own transfer step and tests can
// exercise the same path; ErrIndependentTransfer guards against calling it
// for a pair with no declared dependency.
func (p *Processor) TransferTo(source, target *Instruction, data *modeldata.Store) error {
	cs, ok := target.dependencies[source]
	if !ok {
		return ErrIndependentTransfer
	}
	for c := range cs {
		if v, ok := data.Get(c); ok {
			target.store.SetUnchecked(c, v)
		}
	}
	return nil
}

// retire removes in from the latest-writer/latest-reader maps wherever it
// is still the current holder, commits the components it actually wrote
// into the baseline store, notifies baseline listeners, and removes in
// from the pending set.
func (p *Processor) retire(in *Instruction, data *modeldata.Store) {
	for c := range in.task.Writes() {
		if p.latestWriter[c] == in {
			delete(p.latestWriter, c)
		}
	}
	for c := range in.task.Reads() {
		if p.latestReader[c] == in {
			delete(p.latestReader, c)
		}
	}

	for c := range in.written {
		if v, ok := data.Get(c); ok {
			p.baseline.SetUnchecked(c, v)
		}
	}
	p.baseline.Notify(in.written)

	delete(p.pending, in)
}

// ProcessAllTasks drives ProcessTask until it reports no more eligible
// instructions. Per-task closure failures are not fatal to the
// loop, and there is no built-in abort-on-failure policy here; the
// resilience package's ClosureFailurePolicy.Drive provides one by driving
// ProcessTask directly.
func (p *Processor) ProcessAllTasks() {
	for {
		ok, _ := p.ProcessTask()
		if !ok {
			return
		}
	}
}
