package reactor

import "reflect"

// cell is a reactive storage location: a value plus the observer side of
// the bidirectional dependency bookkeeping. Plain signals are bare cells;
// a memo's cached output is a cell whose comp field points back at the
// producing computation.
//
// observers and observerSlots move in lockstep: observerSlots[i] is the
// index this cell occupies in observers[i].sources. The symmetric pair
// lives on the computation (sources/sourceSlots). Keeping both directions
// indexed is what makes detaching an edge O(1).
type cell struct {
	value any

	// tValue is the shadow value while this cell belongs to an open
	// transition's written set.
	tValue    any
	hasTValue bool

	observers     []*computation
	observerSlots []int

	equals func(prev, next any) bool

	// comp is set when this cell caches a memo's output.
	comp *computation

	// owner is the scope the cell was created under, consulted for
	// disposed-access checks. nil means the cell can never be disposed.
	owner *scope
}

func defaultEquals(prev, next any) bool {
	return reflect.DeepEqual(prev, next)
}

// readCell returns the cell's current value and, when a computation is
// being evaluated, records the dependency edge in both directions. Stale
// memo cells are brought current first so a read never observes a value
// older than its sources.
func (rt *Runtime) readCell(s *cell) (any, error) {
	if s.owner != nil && s.owner.disposed {
		return nil, rt.routeError(&DisposedAccessError{Op: "read"}, rt.owner)
	}
	if c := s.comp; c != nil && !c.disposed && rt.nodeState(c) != stateClean {
		if rt.nodeState(c) == stateStale {
			if err := rt.updateComputation(c); err != nil {
				return nil, err
			}
		} else {
			// Pending: resolve ancestors inside a scratch update queue so
			// the surrounding cycle's queue is not disturbed.
			savedUpdates, savedOpen := rt.updates, rt.updatesOpen
			rt.updates, rt.updatesOpen = nil, false
			err := rt.runUpdates(func() error { return rt.lookUpstream(c, nil) }, false)
			rt.updates, rt.updatesOpen = savedUpdates, savedOpen
			if err != nil {
				return nil, err
			}
		}
	}
	if l := rt.listener; l != nil {
		l.sources = append(l.sources, s)
		l.sourceSlots = append(l.sourceSlots, len(s.observers))
		s.observers = append(s.observers, l)
		s.observerSlots = append(s.observerSlots, len(l.sources)-1)
	}
	if t := rt.transition; t != nil && t.running && s.hasTValue {
		return s.tValue, nil
	}
	return s.value, nil
}

// peekCell returns the current value without tracking and without
// refreshing a stale memo.
func (rt *Runtime) peekCell(s *cell) any {
	if t := rt.transition; t != nil && t.running && s.hasTValue {
		return s.tValue
	}
	return s.value
}

// writeCell stores a new value and marks every observer for the current
// cycle. Direct observers become stale; their own observers become
// pending, so dependents of dependents wait for their ancestors instead of
// recomputing eagerly. While a transition is running the write lands in
// the shadow slot and the live value stays untouched until promotion.
func (rt *Runtime) writeCell(s *cell, value any, isComp bool) error {
	if s.owner != nil && s.owner.disposed {
		return &DisposedAccessError{Op: "write"}
	}
	current := s.value
	if t := rt.transition; t != nil && t.running && s.hasTValue {
		current = s.tValue
	}
	if s.equals != nil && s.equals(current, value) {
		return nil
	}
	if t := rt.transition; t != nil {
		if t.running || (!isComp && s.hasTValue) {
			t.sources.Add(s)
			s.tValue = value
			s.hasTValue = true
		}
		if !t.running {
			s.value = value
		}
	} else {
		s.value = value
	}
	if len(s.observers) == 0 {
		return nil
	}
	return rt.runUpdates(func() error {
		for i := 0; i < len(s.observers); i++ {
			o := s.observers[i]
			if t := rt.transition; t != nil && t.running && t.disposed.Contains(o) {
				continue
			}
			if rt.markState(o) == stateClean {
				rt.setMark(o, stateStale)
				rt.enqueue(o)
				if o.out != nil {
					rt.markDownstream(o)
				}
			} else {
				rt.setMark(o, stateStale)
			}
		}
		return nil
	}, false)
}

// WriteableSignal is a reactive value container. Reading it inside a
// computation subscribes that computation to future writes.
type WriteableSignal[T any] struct {
	rt *Runtime
	c  *cell
}

// Signal creates a writeable cell holding initial. The cell belongs to the
// scope active at creation time; disposing that scope makes further access
// a DisposedAccessError.
func Signal[T any](rt *Runtime, initial T) *WriteableSignal[T] {
	return &WriteableSignal[T]{
		rt: rt,
		c: &cell{
			value:  initial,
			equals: defaultEquals,
			owner:  rt.owner,
		},
	}
}

// WithEquals replaces the signal's change predicate. Writes whose value
// the predicate reports equal to the current one are dropped without
// notifying observers.
func (s *WriteableSignal[T]) WithEquals(fn func(prev, next T) bool) *WriteableSignal[T] {
	s.c.equals = func(prev, next any) bool {
		p, _ := prev.(T)
		n, _ := next.(T)
		return fn(p, n)
	}
	return s
}

// Value returns the current value, registering a dependency when called
// inside a computation.
func (s *WriteableSignal[T]) Value() T {
	v, err := s.rt.readCell(s.c)
	if err != nil {
		s.rt.fatal(err)
	}
	t, _ := v.(T)
	return t
}

// Peek returns the current value without creating a dependency.
func (s *WriteableSignal[T]) Peek() T {
	t, _ := s.rt.peekCell(s.c).(T)
	return t
}

// SetValue writes a new value and flushes the resulting updates. The
// returned error is whatever escaped every error handler in scope during
// the flush, or a DisposedAccessError when the signal's scope is gone.
func (s *WriteableSignal[T]) SetValue(value T) error {
	return s.rt.writeCell(s.c, value, false)
}

// Update writes the result of fn applied to the current value.
func (s *WriteableSignal[T]) Update(fn func(prev T) T) error {
	t, _ := s.rt.peekCell(s.c).(T)
	return s.rt.writeCell(s.c, fn(t), false)
}

// ReadonlySignal is the observable output of a memo computation.
type ReadonlySignal[T any] struct {
	rt *Runtime
	c  *cell
}

// Value returns the memo's value, recomputing it first if any source
// changed since the last read. Registers a dependency when called inside
// a computation.
func (s *ReadonlySignal[T]) Value() T {
	v, err := s.rt.readCell(s.c)
	if err != nil {
		s.rt.fatal(err)
	}
	t, _ := v.(T)
	return t
}

// Peek returns the cached value without refreshing or tracking it. The
// value may be stale.
func (s *ReadonlySignal[T]) Peek() T {
	t, _ := s.rt.peekCell(s.c).(T)
	return t
}
