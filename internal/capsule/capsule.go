// Package capsule implements the time capsule: an "immutable-looking" view
// over a single mutable modeldata.Store, realized by undoing and redoing a
// delta chain along a shared history tree.
package capsule

import (
	"errors"

	"github.com/mweyns/unshacled/internal/modeldata"
)

// Errors surfaced by acquire/release. These indicate a programming error
// by the caller and are never swallowed by the capsule itself.
var (
	ErrAlreadyAcquiredElsewhere = errors.New("capsule: instant already acquired elsewhere")
	ErrNotAcquired              = errors.New("capsule: release called without a matching acquire")
	ErrAcquiredElsewhere        = errors.New("capsule: release called by the wrong instant")
)

// RedoFunc applies a change to store. UndoFunc reverts it.
type RedoFunc func(store *modeldata.Store)
type UndoFunc func(store *modeldata.Store)

// Instant is a node in the capsule's history tree: a logical position over
// the mutable data, reached from its parent by redo and reverted back to
// the parent by undo.
type Instant struct {
	parent     *Instant
	redo       RedoFunc
	undo       UndoFunc
	generation int
}

// Capsule owns the single mutable Store shared by all of its instants, the
// current instant, and the acquisition count/holder.
type Capsule struct {
	data       *modeldata.Store
	root       *Instant
	current    *Instant
	acqCount   int
	acquiredBy *Instant
}

// Create adopts data as the initial instant's state and returns the
// capsule positioned at that root instant.
func Create(data *modeldata.Store) (*Capsule, *Instant) {
	root := &Instant{}
	return &Capsule{data: data, root: root, current: root}, root
}

// Modify returns a new child of from without touching state. The child's redo is do, its undo is undo. Calling Modify
// repeatedly from the same instant builds siblings; calling it against the
// result of a previous Modify extends the chain.
func (c *Capsule) Modify(from *Instant, do RedoFunc, undo UndoFunc) *Instant {
	return &Instant{parent: from, redo: do, undo: undo, generation: from.generation + 1}
}

// lca returns the last common ancestor of a and b, walking the deeper
// instant up to the shallower's generation and then both in lockstep.
func lca(a, b *Instant) *Instant {
	for a.generation > b.generation {
		a = a.parent
	}
	for b.generation > a.generation {
		b = b.parent
	}
	for a != b {
		a = a.parent
		b = b.parent
	}
	return a
}

// Acquire produces the mutable data positioned at self: undo runs along
// the current-instant-to-ancestor path nearest first, then redo runs along
// the ancestor-to-self path ancestor-near first.
func (c *Capsule) Acquire(self *Instant) (*modeldata.Store, error) {
	if c.acqCount > 0 && c.acquiredBy != self {
		return nil, ErrAlreadyAcquiredElsewhere
	}
	if c.current == self {
		c.acqCount++
		c.acquiredBy = self
		return c.data, nil
	}

	ancestor := lca(c.current, self)

	for n := c.current; n != ancestor; n = n.parent {
		n.undo(c.data)
	}

	var path []*Instant
	for n := self; n != ancestor; n = n.parent {
		path = append(path, n)
	}
	for i := len(path) - 1; i >= 0; i-- {
		path[i].redo(c.data)
	}

	c.current = self
	c.acqCount++
	c.acquiredBy = self
	return c.data, nil
}

// Release decrements the acquisition count held by self.
func (c *Capsule) Release(self *Instant) error {
	if c.acqCount == 0 {
		return ErrNotAcquired
	}
	if c.acquiredBy != self {
		return ErrAcquiredElsewhere
	}
	c.acqCount--
	return nil
}

// Query acquires self, invokes fn, and releases, guaranteeing release even
// if fn fails.
func (c *Capsule) Query(self *Instant, fn func(*modeldata.Store) error) error {
	data, err := c.Acquire(self)
	if err != nil {
		return err
	}
	defer c.Release(self)
	return fn(data)
}

// Root returns the capsule's initial instant.
func (c *Capsule) Root() *Instant { return c.root }

// Current returns the instant the capsule's data is currently positioned
// at.
func (c *Capsule) Current() *Instant { return c.current }
