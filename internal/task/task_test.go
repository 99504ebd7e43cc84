package task_test

import (
	"testing"

	"github.com/mweyns/unshacled/internal/component"
	"github.com/mweyns/unshacled/internal/modeldata"
	"github.com/mweyns/unshacled/internal/task"
)

func TestNewDefaultsPriorityToZero(t *testing.T) {
	tk := task.New(func(*modeldata.Store) {}, component.NewSet(), component.NewSet())
	if tk.Priority() != 0 {
		t.Fatalf("Priority() = %d, want 0", tk.Priority())
	}
}

func TestExecuteRunsClosure(t *testing.T) {
	ran := false
	tk := task.New(func(d *modeldata.Store) {
		ran = true
		d.Set(component.DataGraph, 9)
	}, component.NewSet(), component.NewSet(component.DataGraph))

	data := modeldata.New()
	tk.Execute(data)
	if !ran {
		t.Fatal("expected closure to run")
	}
	if v, _ := data.Get(component.DataGraph); v != 9 {
		t.Fatalf("DataGraph = %v, want 9", v)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tk := task.New(func(*modeldata.Store) {}, component.NewSet(component.DataGraph), component.NewSet(component.IO), 3)
	clone := tk.Clone()

	clone.Reads().Add(component.UI)
	if tk.Reads().Has(component.UI) {
		t.Fatal("mutating clone's read-set must not affect the original")
	}
	if clone.Priority() != 3 {
		t.Fatalf("clone Priority() = %d, want 3", clone.Priority())
	}
}

func TestWithReadsWritesKeepsClosureAndPriority(t *testing.T) {
	ran := false
	tk := task.New(func(*modeldata.Store) { ran = true }, component.NewSet(), component.NewSet(), 5)
	retagged := tk.WithReadsWrites(component.NewSet(component.IO), component.NewSet(component.UI))

	if retagged.Priority() != 5 {
		t.Fatalf("Priority() = %d, want 5", retagged.Priority())
	}
	if !retagged.Reads().Has(component.IO) || !retagged.Writes().Has(component.UI) {
		t.Fatal("expected retagged read/write sets to be applied")
	}
	retagged.Execute(modeldata.New())
	if !ran {
		t.Fatal("expected the original closure to still run")
	}
}
