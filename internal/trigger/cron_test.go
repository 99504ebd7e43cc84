package trigger

import (
	"testing"

	"github.com/mweyns/unshacled/internal/component"
	"github.com/mweyns/unshacled/internal/dag"
	"github.com/mweyns/unshacled/internal/modeldata"
	"github.com/mweyns/unshacled/internal/task"
)

func TestCronTriggerAddScheduleRejectsBadExpr(t *testing.T) {
	p := dag.New(modeldata.New())
	ct := NewCronTrigger(p, nil)

	_, err := ct.AddSchedule("bad", "not-a-cron-expr", func() *task.Task { return nil })
	if err == nil {
		t.Fatal("expected an error for a malformed cron expression")
	}
}

func TestCronTriggerAddScheduleAcceptsValidExpr(t *testing.T) {
	p := dag.New(modeldata.New())
	ct := NewCronTrigger(p, nil)

	writes := component.NewSet(component.DataGraph)
	base := task.New(func(d *modeldata.Store) { d.Set(component.DataGraph, 1) }, component.NewSet(), writes)

	id, err := ct.AddSchedule("tick", "*/5 * * * * *", func() *task.Task { return base.Clone() })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero entry id")
	}
	ct.Remove(id)
}
