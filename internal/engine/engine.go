// Package engine serializes concurrent producers (the cron and event
// triggers in internal/trigger) onto a single dag.Processor. The processor
// itself is deliberately single-threaded and cooperative; Engine is the
// outer adapter that lets several goroutines submit work to it safely, by
// taking turns under a mutex rather than by making the core itself
// concurrent.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/mweyns/unshacled/internal/dag"
	"github.com/mweyns/unshacled/internal/resilience"
	"github.com/mweyns/unshacled/internal/rewrite"
	"github.com/mweyns/unshacled/internal/task"
)

// Engine owns a *dag.Processor on behalf of any number of concurrent
// callers. It satisfies trigger.Scheduler.
type Engine struct {
	mu        sync.Mutex
	processor *dag.Processor
	logger    *slog.Logger
	policy    *resilience.ClosureFailurePolicy

	scheduled metric.Int64Counter
	processed metric.Int64Counter
	duration  metric.Float64Histogram
	fused     metric.Int64Counter
	lastFused int64
}

// New wraps processor for concurrent submission.
func New(processor *dag.Processor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{processor: processor, logger: logger}
}

// SetInstruments attaches the OTel instruments Schedule reports through.
// Calling it is optional; a nil Engine field is simply skipped.
func (e *Engine) SetInstruments(scheduled, processed metric.Int64Counter, duration metric.Float64Histogram, fused metric.Int64Counter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scheduled, e.processed, e.duration, e.fused = scheduled, processed, duration, fused
}

// SetFailurePolicy installs the strict-mode abort-the-batch policy:
// once policy's breaker trips on repeated closure-failure outcomes,
// Schedule stops draining the ready queue early instead of working
// through every remaining eligible instruction.
func (e *Engine) SetFailurePolicy(policy *resilience.ClosureFailurePolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = policy
}

// Schedule places t in the dependency graph and immediately drains every
// instruction that becomes eligible, so the model has converged by the
// time Schedule returns to the caller - unless a failure policy is
// installed and trips, in which case draining stops early.
func (e *Engine) Schedule(t *task.Task) *dag.Instruction {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.processor.Schedule(t)
	if e.scheduled != nil {
		e.scheduled.Add(context.Background(), 1)
	}

	processOne := func() (bool, error) {
		start := time.Now()
		ok, err := e.processor.ProcessTask()
		if ok {
			if e.duration != nil {
				e.duration.Record(context.Background(), time.Since(start).Seconds())
			}
			if e.processed != nil {
				e.processed.Add(context.Background(), 1)
			}
		}
		return ok, err
	}

	if e.policy != nil {
		if err := e.policy.Drive(processOne); err != nil {
			e.logger.Warn("batch aborted by failure policy", "error", err)
		}
	} else {
		for {
			ok, err := processOne()
			if err != nil {
				e.logger.Warn("task closure failed", "error", err)
			}
			if !ok {
				break
			}
		}
	}

	if e.fused != nil {
		if total := e.processor.FusedCount(); total > e.lastFused {
			e.fused.Add(context.Background(), total-e.lastFused)
			e.lastFused = total
		}
	}
	return in
}

// RegisterRewriter forwards to the wrapped processor under lock.
func (e *Engine) RegisterRewriter(r rewrite.Rewriter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processor.RegisterRewriter(r)
}

// Stats reports a point-in-time snapshot of the wrapped processor for the
// demo binary's health endpoint.
func (e *Engine) Stats() (readyDepth int, isEmpty bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processor.ReadyDepth(), e.processor.IsEmpty()
}
