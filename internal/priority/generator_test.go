package priority_test

import (
	"testing"

	"github.com/mweyns/unshacled/internal/priority"
)

// The exact 42-call sequence after NotifyPriorityExists(3) and
// NotifyPriorityExists(-2): nested descending runs from hi, each one
// value longer than the last, repeating once every run has reached lo.
func TestGeneratorExactSequence(t *testing.T) {
	g := priority.NewGenerator()
	g.NotifyPriorityExists(3)
	g.NotifyPriorityExists(-2)

	want := []int{}
	one := []int{3, 3, 2, 3, 2, 1, 3, 2, 1, 0, 3, 2, 1, 0, -1, 3, 2, 1, 0, -1, -2}
	want = append(want, one...)
	want = append(want, one...)

	if len(want) != 42 {
		t.Fatalf("test setup error: want has %d entries, expected 42", len(want))
	}

	for i, w := range want {
		if got := g.Next(); got != w {
			t.Fatalf("call %d: Next() = %d, want %d", i, got, w)
		}
	}
}

func TestGeneratorDefaultEmitsZero(t *testing.T) {
	g := priority.NewGenerator()
	for i := 0; i < 5; i++ {
		if got := g.Next(); got != 0 {
			t.Fatalf("call %d: Next() = %d, want 0", i, got)
		}
	}
}

func TestGeneratorSecondNotifyIsNoopWhenInRange(t *testing.T) {
	g := priority.NewGenerator()
	g.NotifyPriorityExists(3)
	lo, hi := g.Range()
	if lo != 0 || hi != 3 {
		t.Fatalf("Range() = (%d,%d), want (0,3)", lo, hi)
	}
	g.Next()
	g.NotifyPriorityExists(2) // already in [0,3], must not reset current/step
	if got := g.Next(); got != 3 {
		t.Fatalf("Next() after in-range notify = %d, want 3 (sawtooth must continue uninterrupted)", got)
	}
}
