package reactor

// computation is the unified node for derived values and side effects. It
// is an owner scope (it may own nested computations) and, when it is a
// memo, also a cell through its out field.
type computation struct {
	scope

	rt *Runtime
	fn func(prev any) (any, error)

	state state

	// tState shadows state while a transition is open. hasTState records
	// whether the shadow was ever written, so reads can fall back to the
	// live state for nodes the transition never touched.
	tState    state
	hasTState bool

	// sources and sourceSlots mirror cell.observers/observerSlots from
	// the other side of each edge.
	sources     []*cell
	sourceSlots []int

	// value is the previous result handed back to fn. Memos cache their
	// result in out instead.
	value any
	out   *cell

	// updatedAt is the cycle tick of the last completed run.
	updatedAt uint64

	kind kind
}

func newComputation(rt *Runtime, fn func(prev any) (any, error), k kind, init any) *computation {
	c := &computation{rt: rt, fn: fn, kind: k, state: stateStale, value: init}
	c.scope.comp = c
	if k == kindMemo {
		c.out = &cell{equals: defaultEquals, comp: c, owner: &c.scope}
	}
	if rt.owner != nil {
		c.scope.parent = rt.owner
		rt.owner.owned = append(rt.owner.owned, c)
		if t := rt.transition; t != nil && t.running {
			t.created = append(t.created, c)
		}
	}
	return c
}

// nodeState is the state the scheduler acts on: the shadow state while a
// transition is running and this node was marked under it, the live state
// otherwise.
func (rt *Runtime) nodeState(c *computation) state {
	if t := rt.transition; t != nil && t.running && c.hasTState {
		return c.tState
	}
	return c.state
}

// markState is the state consulted when deciding whether a node still
// needs queueing. Under a running transition only the shadow state counts,
// so a node that was already stale before the transition still gets queued
// for shadow recomputation.
func (rt *Runtime) markState(c *computation) state {
	if t := rt.transition; t != nil && t.running {
		if !c.hasTState {
			return stateClean
		}
		return c.tState
	}
	return c.state
}

func (rt *Runtime) setMark(c *computation, st state) {
	if t := rt.transition; t != nil && t.running {
		c.tState = st
		c.hasTState = true
		t.queue.Add(c)
	} else {
		c.state = st
	}
}

// enqueue routes a marked node to the queue matching its kind. Memos with
// no observers are left stale instead of queued: nothing downstream needs
// them, so the next actual read pulls them current (the lazy-memo
// guarantee).
func (rt *Runtime) enqueue(c *computation) {
	if c.kind == kindMemo {
		if len(c.out.observers) > 0 && rt.updatesOpen {
			rt.updates = append(rt.updates, c)
		}
	} else if rt.effectsOpen {
		rt.effects = append(rt.effects, c)
	}
}

// markDownstream marks everything observing a memo's output as pending.
// Pending nodes wait for their ancestors to resolve before deciding
// whether they need to recompute at all.
func (rt *Runtime) markDownstream(node *computation) {
	for _, o := range node.out.observers {
		if rt.markState(o) != stateClean {
			continue
		}
		rt.setMark(o, statePending)
		rt.enqueue(o)
		if o.out != nil {
			rt.markDownstream(o)
		}
	}
}

// updateComputation re-runs a computation: detach from the old sources,
// dispose owned children, then execute fn with this node installed as the
// active owner and listener so the new dependency set is captured.
func (rt *Runtime) updateComputation(c *computation) error {
	if c.fn == nil || c.disposed {
		return nil
	}
	rt.cleanNode(c, false)
	prevOwner, prevListener := rt.owner, rt.listener
	rt.owner, rt.listener = &c.scope, c
	err := rt.runComputation(c, rt.execCount)
	rt.owner, rt.listener = prevOwner, prevListener
	return err
}

func (rt *Runtime) runComputation(c *computation, time uint64) error {
	prev := c.value
	if c.out != nil {
		prev = c.out.value
	}
	next, err := c.fn(prev)
	if err != nil {
		// Leave the node stale so a later read retries, but stamp it past
		// the current tick to stop this cycle from re-running it.
		rt.setMark(c, stateStale)
		c.updatedAt = time + 1
		return rt.routeError(&UserFunctionError{Err: err}, c.scope.parent)
	}
	if c.updatedAt <= time {
		switch {
		case c.out != nil && c.updatedAt > 0:
			if werr := rt.writeCell(c.out, next, true); werr != nil {
				return werr
			}
		case c.out != nil:
			// First run: store directly, nobody can be observing yet and
			// the comparator must not see the zero value as "previous".
			if t := rt.transition; t != nil && t.running {
				c.out.tValue = next
				c.out.hasTValue = true
				t.sources.Add(c.out)
			} else {
				c.out.value = next
			}
		default:
			c.value = next
		}
		c.updatedAt = time
	}
	return nil
}

// cleanNode detaches a computation from all of its sources, disposes its
// owned children (children first, reverse creation order), then runs its
// cleanups in reverse. With dispose set the node is dead for good;
// otherwise this is the reset performed before every re-run.
//
// Detaching pops edges off the tail of the source list and swap-removes
// the paired entry from each cell's observer list, fixing up the moved
// observer's slot back-pointer. Each edge costs O(1) no matter how many
// other observers the cell has.
func (rt *Runtime) cleanNode(c *computation, dispose bool) {
	for len(c.sources) > 0 {
		last := len(c.sources) - 1
		source := c.sources[last]
		index := c.sourceSlots[last]
		c.sources = c.sources[:last]
		c.sourceSlots = c.sourceSlots[:last]

		obs := source.observers
		if len(obs) > 0 {
			moved := obs[len(obs)-1]
			movedSlot := source.observerSlots[len(obs)-1]
			source.observers = obs[:len(obs)-1]
			source.observerSlots = source.observerSlots[:len(obs)-1]
			if index < len(source.observers) {
				moved.sourceSlots[movedSlot] = index
				source.observers[index] = moved
				source.observerSlots[index] = movedSlot
			}
		}
	}

	for i := len(c.owned) - 1; i >= 0; i-- {
		rt.disposeComputation(c.owned[i])
	}
	c.owned = nil

	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
	c.cleanups = nil

	if t := rt.transition; t != nil && t.running {
		c.tState = stateClean
		c.hasTState = true
	} else {
		c.state = stateClean
	}
	if dispose {
		c.disposed = true
	}
}
