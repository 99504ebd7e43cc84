// Package priority implements the deterministic sawtooth priority generator
// and the priority-partitioned ready queue built on top of it.
package priority

// Generator produces an infinite, deterministic sequence of integer
// priorities favoring the highest priority currently of interest while
// guaranteeing every lower priority eventually gets a turn.
type Generator struct {
	hi, lo  int
	step    int
	current int
}

// NewGenerator returns a generator with hi=lo=0, step=1, current=hi, as if
// no priority had ever been notified - emitting all zeros until a priority
// is notified.
func NewGenerator() *Generator {
	return &Generator{step: 1}
}

// NotifyPriorityExists enlarges the tracked range to include p. The first
// call that actually enlarges hi or lo resets step to 1 and current to hi;
// subsequent calls naming an already-covered priority are no-ops.
func (g *Generator) NotifyPriorityExists(p int) {
	enlarged := false
	if p > g.hi {
		g.hi = p
		enlarged = true
	}
	if p < g.lo {
		g.lo = p
		enlarged = true
	}
	if enlarged {
		g.step = 1
		g.current = g.hi
	}
}

// Next emits the next priority in the sawtooth sequence.
func (g *Generator) Next() int {
	value := g.current
	if g.current > g.hi-g.step+1 && g.current > g.lo {
		g.current--
	} else {
		g.step++
		if g.step > g.hi-g.lo+1 {
			g.step = 1
		}
		g.current = g.hi
	}
	return value
}

// Range returns the generator's current [lo, hi] span, mostly useful for
// the ready queue's bounded-attempts dequeue.
func (g *Generator) Range() (lo, hi int) {
	return g.lo, g.hi
}
