// Package trigger supplements synchronous, externally-driven task
// submission with two asynchronous sources: a cron expression and an
// event subject. Neither reaches into the processor's internals - both
// only ever call the public Schedule method.
package trigger

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mweyns/unshacled/internal/dag"
	"github.com/mweyns/unshacled/internal/task"
)

// Scheduler is the one processor capability a trigger needs: placing a
// task in the dependency graph. Satisfied directly by *dag.Processor for
// single-producer use, or by a serializing wrapper (internal/engine.Engine)
// when more than one trigger submits concurrently - the processor itself is
// not safe for concurrent use.
type Scheduler interface {
	Schedule(t *task.Task) *dag.Instruction
}

// CronTrigger periodically schedules a task.Task on a Scheduler.
type CronTrigger struct {
	cron      *cron.Cron
	processor Scheduler
	logger    *slog.Logger
}

// NewCronTrigger builds a cron-driven trigger against processor.
// Expressions use seconds precision.
func NewCronTrigger(processor Scheduler, logger *slog.Logger) *CronTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronTrigger{
		cron:      cron.New(cron.WithSeconds()),
		processor: processor,
		logger:    logger,
	}
}

// AddSchedule registers factory to be scheduled every time expr fires.
// factory is called fresh each tick so the resulting task.Task carries its
// own private closure state if the caller wants that; callers that just
// want the same annotated task resubmitted repeatedly can return t.Clone()
// from factory.
func (c *CronTrigger) AddSchedule(name, expr string, factory func() *task.Task) (cron.EntryID, error) {
	id, err := c.cron.AddFunc(expr, func() {
		firing := uuid.New().String()
		t := factory()
		in := c.processor.Schedule(t)
		c.logger.Info("cron schedule fired", "name", name, "cron", expr, "firing_id", firing, "instruction", in.Index())
	})
	if err != nil {
		return 0, err
	}
	c.logger.Info("cron schedule added", "name", name, "cron", expr, "entry_id", id)
	return id, nil
}

// Remove cancels a previously added schedule.
func (c *CronTrigger) Remove(id cron.EntryID) {
	c.cron.Remove(id)
}

// Start begins firing registered schedules.
func (c *CronTrigger) Start() {
	c.cron.Start()
	c.logger.Info("cron trigger started")
}

// Stop waits for any in-flight job to finish before returning.
func (c *CronTrigger) Stop() {
	<-c.cron.Stop().Done()
	c.logger.Info("cron trigger stopped")
}
