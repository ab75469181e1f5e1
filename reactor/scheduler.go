package reactor

// runUpdates is the single entry point for every flush cycle. If an update
// queue is already open this is a re-entrant call and fn simply runs
// inside the current cycle. Otherwise a fresh cycle opens: the tick
// advances, fn populates the queues, pure computations drain first and
// effects drain afterwards in a new nested cycle so that writes performed
// by effects start clean instead of corrupting this one.
func (rt *Runtime) runUpdates(fn func() error, init bool) error {
	if rt.updatesOpen {
		return fn()
	}
	wait := false
	if !init {
		rt.updatesOpen = true
	}
	if rt.effectsOpen {
		wait = true
	} else {
		rt.effectsOpen = true
	}
	rt.execCount++
	if err := fn(); err != nil {
		rt.updates, rt.updatesOpen = nil, false
		if !wait {
			rt.effects, rt.effectsOpen = nil, false
		}
		return err
	}
	return rt.completeUpdates(wait)
}

func (rt *Runtime) completeUpdates(wait bool) error {
	if rt.updatesOpen {
		if err := rt.runQueue(); err != nil {
			rt.updates, rt.updatesOpen = nil, false
			rt.effects, rt.effectsOpen = nil, false
			return err
		}
	}
	if wait {
		return nil
	}
	if t := rt.transition; t != nil && t.running {
		if t.holds > 0 {
			// Async work outstanding: park the effects on the transition
			// and hand control back. Outside reads see live values again
			// until the last hold releases.
			t.running = false
			t.effects = append(t.effects, rt.effects...)
			rt.effects, rt.effectsOpen = nil, false
			return nil
		}
		// Promotion may re-queue memos whose shadow state is still stale, so
		// the update queue reopens for one more drain before effects run.
		rt.updatesOpen = true
		rt.finishTransition(t)
		if err := rt.runQueue(); err != nil {
			rt.updates, rt.updatesOpen = nil, false
			rt.effects, rt.effectsOpen = nil, false
			return err
		}
	}
	e := rt.effects
	rt.effects, rt.effectsOpen = nil, false
	if len(e) == 0 {
		return nil
	}
	return rt.runUpdates(func() error { return rt.runEffects(e) }, false)
}

// runQueue drains the update queue in arrival order. runTop may append
// more entries while ancestors resolve, so the loop re-reads the length.
func (rt *Runtime) runQueue() error {
	for i := 0; i < len(rt.updates); i++ {
		if err := rt.runTop(rt.updates[i]); err != nil {
			return err
		}
	}
	rt.updates, rt.updatesOpen = nil, false
	return nil
}

// runEffects drains one effect batch in two tiers: render effects first,
// user effects second, each tier in first-marked order. The compaction
// reuses the queue slice for the user tier.
func (rt *Runtime) runEffects(queue []*computation) error {
	userLength := 0
	for _, e := range queue {
		if e.kind == kindRenderEffect {
			if err := rt.runTop(e); err != nil {
				return err
			}
		} else {
			queue[userLength] = e
			userLength++
		}
	}
	for i := 0; i < userLength; i++ {
		if err := rt.runTop(queue[i]); err != nil {
			return err
		}
	}
	return nil
}

// runTop brings one queued node current without ever letting it observe a
// stale ancestor. Stale nodes collect every not-yet-updated ancestor up
// the scope chain, child first, then execute the list in reverse so
// parents are current before children run. Pending nodes only resolve
// their upstream; whether they must recompute at all is unknown until
// their ancestors settle.
func (rt *Runtime) runTop(node *computation) error {
	if node.disposed {
		return nil
	}
	switch rt.nodeState(node) {
	case stateClean:
		return nil
	case statePending:
		return rt.lookUpstream(node, nil)
	}

	t := rt.transition
	running := t != nil && t.running
	if running && t.disposed.Contains(node) {
		return nil
	}

	ancestors := []*computation{node}
	for sc := node.scope.parent; sc != nil; sc = sc.parent {
		anc := sc.comp
		if anc == nil {
			continue
		}
		if anc.updatedAt >= rt.execCount {
			break
		}
		if running && t.disposed.Contains(anc) {
			return nil
		}
		if rt.nodeState(anc) != stateClean {
			ancestors = append(ancestors, anc)
		}
	}

	for i := len(ancestors) - 1; i >= 0; i-- {
		n := ancestors[i]
		switch rt.nodeState(n) {
		case stateStale:
			if err := rt.updateComputation(n); err != nil {
				return err
			}
		case statePending:
			savedUpdates, savedOpen := rt.updates, rt.updatesOpen
			rt.updates, rt.updatesOpen = nil, false
			err := rt.runUpdates(func() error { return rt.lookUpstream(n, ancestors[0]) }, false)
			rt.updates, rt.updatesOpen = savedUpdates, savedOpen
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// lookUpstream resolves exactly the ancestors a pending node actually
// needs: the node is tentatively marked clean, then every source that is
// itself a stale computation runs, and pending sources recurse. If an
// ancestor turns out to have changed, its propagation re-marks this node
// stale and re-queues it.
func (rt *Runtime) lookUpstream(node *computation, ignore *computation) error {
	if t := rt.transition; t != nil && t.running {
		node.tState = stateClean
		node.hasTState = true
	} else {
		node.state = stateClean
	}
	for _, src := range node.sources {
		c := src.comp
		if c == nil {
			continue
		}
		switch rt.nodeState(c) {
		case stateStale:
			if c != ignore && c.updatedAt < rt.execCount {
				if err := rt.runTop(c); err != nil {
					return err
				}
			}
		case statePending:
			if err := rt.lookUpstream(c, ignore); err != nil {
				return err
			}
		}
	}
	return nil
}

// Batch runs fn inside one update cycle so that any number of writes
// flushes pure recomputation once and effects once. The returned error is
// whatever escaped every error handler during the flush.
func Batch(rt *Runtime, fn func()) error {
	return rt.runUpdates(func() error {
		fn()
		return nil
	}, false)
}

// Untrack runs fn with dependency tracking suspended and returns its
// result. Reads inside fn do not subscribe the current computation.
func Untrack[T any](rt *Runtime, fn func() T) T {
	prev := rt.listener
	rt.listener = nil
	defer func() { rt.listener = prev }()
	return fn()
}
