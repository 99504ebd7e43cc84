package engine_test

import (
	"sync"
	"testing"

	"github.com/mweyns/unshacled/internal/component"
	"github.com/mweyns/unshacled/internal/dag"
	"github.com/mweyns/unshacled/internal/engine"
	"github.com/mweyns/unshacled/internal/modeldata"
	"github.com/mweyns/unshacled/internal/task"
)

func TestEngineScheduleDrainsBeforeReturning(t *testing.T) {
	baseline := modeldata.New()
	e := engine.New(dag.New(baseline), nil)

	t1 := e.Schedule(task.New(func(d *modeldata.Store) {
		d.Set(component.DataGraph, 1)
	}, component.NewSet(), component.NewSet(component.DataGraph)))
	if t1 == nil {
		t.Fatal("expected a non-nil instruction")
	}

	if v, ok := baseline.Get(component.DataGraph); !ok || v.(int) != 1 {
		t.Fatalf("expected baseline DataGraph=1 once Schedule returns, got %v (ok=%v)", v, ok)
	}

	ready, empty := e.Stats()
	if !empty || ready != 0 {
		t.Fatalf("expected an empty, idle engine after drain, got ready=%d empty=%v", ready, empty)
	}
}

func TestEngineScheduleIsSafeForConcurrentCallers(t *testing.T) {
	baseline := modeldata.New()
	e := engine.New(dag.New(baseline), nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Schedule(task.New(func(d *modeldata.Store) {
				cur, _ := d.Get(component.IO)
				count, _ := cur.(int)
				d.Set(component.IO, count+1)
			}, component.NewSet(component.IO), component.NewSet(component.IO)))
		}()
	}
	wg.Wait()

	v, ok := baseline.Get(component.IO)
	if !ok || v.(int) != n {
		t.Fatalf("expected %d serialized increments, got %v (ok=%v)", n, v, ok)
	}
}
