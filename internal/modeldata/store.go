// Package modeldata implements the scheduler's shared, component-keyed data
// store: get/set/getOrCreate/setUnchecked plus the mutation recording the
// time capsule needs to build its undo/redo thunks.
package modeldata

import (
	"sync"

	"github.com/mweyns/unshacled/internal/component"
)

// ChangeListener receives the set of components a completed task actually
// wrote.
type ChangeListener func(written component.Set)

// Delta is a single reversible edit: the value a component held before and
// after a Set call. HasBefore/HasAfter distinguish "absent" from "present
// with a nil value".
type Delta struct {
	Component component.ID
	Before    any
	HasBefore bool
	After     any
	HasAfter  bool
}

// Revert re-applies the pre-image of the delta directly to data, bypassing
// recording (used by undo thunks).
func (d Delta) Revert(store *Store) {
	if d.HasBefore {
		store.SetUnchecked(d.Component, d.Before)
	} else {
		store.delete(d.Component)
	}
}

// Replay re-applies the post-image of the delta, bypassing recording (used
// by redo thunks that don't re-run the original closure).
func (d Delta) Replay(store *Store) {
	if d.HasAfter {
		store.SetUnchecked(d.Component, d.After)
	} else {
		store.delete(d.Component)
	}
}

// Store is a mapping from component.ID to an opaque value. It is not
// safe for concurrent use by design: the scheduler that owns a Store runs
// single-threaded and cooperative (see the concurrency & resource model).
// The mutex below guards only the listener slice, which ambient code (the
// cron/event trigger layer) may register from outside the scheduling loop.
type Store struct {
	data      map[component.ID]any
	onMutate  func(Delta)
	listeners []ChangeListener
	listenMu  sync.Mutex
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[component.ID]any)}
}

// Fork returns a new Store with an independent copy of the current
// key/value pairs and no recorder or listeners attached. It is how the
// processor gives each instruction its own private snapshot buffer.
func (s *Store) Fork() *Store {
	clone := New()
	for k, v := range s.data {
		clone.data[k] = v
	}
	return clone
}

// Get returns the value for id and whether it was present.
func (s *Store) Get(id component.ID) (any, bool) {
	v, ok := s.data[id]
	return v, ok
}

// Set replaces the value for id, recording a reversible delta if a recorder
// is currently installed (i.e. a time-capsule instant has this store
// acquired and is building a redo/undo pair).
func (s *Store) Set(id component.ID, value any) {
	before, hadBefore := s.data[id]
	s.data[id] = value
	if s.onMutate != nil {
		s.onMutate(Delta{Component: id, Before: before, HasBefore: hadBefore, After: value, HasAfter: true})
	}
}

// GetOrCreate returns the existing value for id, or installs factory()'s
// result and returns that. Installation is recorded exactly like Set.
func (s *Store) GetOrCreate(id component.ID, factory func() any) any {
	if v, ok := s.data[id]; ok {
		return v
	}
	v := factory()
	s.Set(id, v)
	return v
}

// SetUnchecked writes id's value directly, bypassing change tracking. The
// processor uses this exclusively to transfer a retiring instruction's
// output into a successor's private store, and to commit retired values
// into the externally-visible baseline store.
func (s *Store) SetUnchecked(id component.ID, value any) {
	s.data[id] = value
}

func (s *Store) delete(id component.ID) {
	delete(s.data, id)
}

// ObserveChanges registers a listener invoked after each task completes
// with the set of components it actually wrote.
func (s *Store) ObserveChanges(listener ChangeListener) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *Store) notify(written component.Set) {
	if len(written) == 0 {
		return
	}
	s.listenMu.Lock()
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.listenMu.Unlock()
	for _, l := range listeners {
		l(written)
	}
}

// BeginRecording enables mutation recording and returns a function that
// disables it again and returns the deltas collected so far. Splitting
// begin/end (rather than a single Record(fn) helper) lets a caller capture
// partial deltas even if fn panics partway through - the scheduler needs
// this to keep the instant chain consistent when a task closure fails.
func (s *Store) BeginRecording() (end func() []Delta) {
	var deltas []Delta
	prev := s.onMutate
	s.onMutate = func(d Delta) { deltas = append(deltas, d) }
	return func() []Delta {
		s.onMutate = prev
		return deltas
	}
}

// Record runs fn with mutation recording enabled and returns the ordered
// list of deltas fn's Set/GetOrCreate calls produced. It is a convenience
// wrapper over BeginRecording for callers that don't need panic safety
// (tests, mostly).
func (s *Store) Record(fn func(*Store)) []Delta {
	end := s.BeginRecording()
	fn(s)
	return end()
}

// Written extracts the set of components touched by a delta slice.
func Written(deltas []Delta) component.Set {
	set := component.NewSet()
	for _, d := range deltas {
		set.Add(d.Component)
	}
	return set
}

// Notify delivers a written-components set to this store's listeners. It is
// exported for the processor's retire step, which notifies the externally
// visible (baseline) store rather than an instruction's private fork.
func (s *Store) Notify(written component.Set) {
	s.notify(written)
}
