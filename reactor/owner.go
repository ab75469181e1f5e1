package reactor

// scope is a node in the ownership tree. Every computation is a scope (it
// may own nested computations); roots created with Root are plain scopes.
// Disposing a scope disposes owned children first, in reverse creation
// order, then runs the scope's cleanup callbacks, also in reverse.
//
// The parent reference is fixed at creation and is a relation only, never
// ownership: context reads and error escalation bubble up through it, but
// a parent does not keep a root alive and a root outlives its parent.
type scope struct {
	parent   *scope
	owned    []*computation
	cleanups []func()
	context  map[uint64]any
	disposed bool

	// comp points back to the computation this scope belongs to, or nil
	// for plain roots. The topological run walks scope parents and needs
	// to find ancestor computations through it.
	comp *computation
}

// lookupContext walks the parent chain until the key is found. The second
// return reports whether any scope carried the key, so "not found" is an
// explicit outcome rather than a zero value.
func (s *scope) lookupContext(key uint64) (any, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.context == nil {
			continue
		}
		if v, ok := sc.context[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) setContext(key uint64, value any) {
	if s.context == nil {
		s.context = map[uint64]any{}
	}
	s.context[key] = value
}

// disposeScope tears down a plain scope. Disposing twice is a no-op.
func (rt *Runtime) disposeScope(s *scope) {
	if s.disposed {
		return
	}
	s.disposed = true
	for i := len(s.owned) - 1; i >= 0; i-- {
		rt.disposeComputation(s.owned[i])
	}
	s.owned = nil
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
}

// disposeComputation permanently tears down a computation. Under a running
// transition the node is only recorded in the transition's disposed set;
// the real teardown happens at promotion, and a discarded transition
// leaves the node alive.
func (rt *Runtime) disposeComputation(c *computation) {
	if c.disposed {
		return
	}
	if t := rt.transition; t != nil && t.running {
		t.disposed.Add(c)
		return
	}
	rt.cleanNode(c, true)
}

// Root runs fn under a fresh unowned scope and hands it the scope's
// disposer. The scope keeps a parent reference for context and error
// lookup but is not registered as an owned child, so the caller must
// eventually call dispose itself.
func Root(rt *Runtime, fn func(dispose func()) error) error {
	s := &scope{parent: rt.owner}
	prevOwner, prevListener := rt.owner, rt.listener
	rt.owner, rt.listener = s, nil
	defer func() {
		rt.owner, rt.listener = prevOwner, prevListener
	}()
	if err := fn(func() { rt.disposeScope(s) }); err != nil {
		return rt.routeError(&UserFunctionError{Err: err}, s)
	}
	return nil
}

// OnCleanup registers fn to run when the current scope is disposed or when
// the owning computation re-runs. Outside any scope it does nothing.
func OnCleanup(rt *Runtime, fn func()) {
	if rt.owner == nil {
		return
	}
	rt.owner.cleanups = append(rt.owner.cleanups, fn)
}
