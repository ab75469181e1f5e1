package reactor

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Transition is an isolated batch of graph work. Writes performed while it
// runs land in shadow slots on the touched cells, so code outside the
// transition keeps observing the old, consistent values. When every hold
// is released the shadow graph is either promoted atomically onto the live
// graph or, on failure, discarded without a trace.
type Transition struct {
	rt *Runtime

	// sources is every cell holding a shadow value; promotion copies the
	// shadows over and discard clears them.
	sources mapset.Set[*cell]
	// disposed is every computation whose teardown is deferred until the
	// transition settles. A discarded transition leaves them alive.
	disposed mapset.Set[*computation]
	// queue is every computation that received a shadow state mark.
	queue mapset.Set[*computation]
	// created is every computation created while the transition ran, in
	// creation order, so a discard can tear them down again.
	created []*computation

	// effects accumulates parked effect nodes while holds keep the
	// transition open across cycles.
	effects []*computation

	holds   int
	running bool
	settled bool

	done chan struct{}
	err  error
}

// RunTransition starts a transition (or joins the already open one) and
// runs fn inside it as one update cycle. fn may take holds to keep the
// transition open past its own return; with no holds outstanding the
// transition settles synchronously before RunTransition returns.
func RunTransition(rt *Runtime, fn func(t *Transition) error) *Transition {
	t := rt.transition
	if t == nil {
		t = &Transition{
			rt:       rt,
			sources:  mapset.NewThreadUnsafeSet[*cell](),
			disposed: mapset.NewThreadUnsafeSet[*computation](),
			queue:    mapset.NewThreadUnsafeSet[*computation](),
			done:     make(chan struct{}),
		}
		rt.transition = t
	}
	t.running = true
	err := rt.runUpdates(func() error { return fn(t) }, false)
	if err != nil && !t.settled {
		t.settle(&TransitionFailure{Err: err})
	}
	// On the success path settlement already happened inside the cycle
	// (no holds) or is deferred to the last hold's release. A re-entrant
	// call never settles; the enclosing cycle does.
	return t
}

// Hold keeps the transition open across asynchronous work. The returned
// release settles the transition when the last outstanding hold releases:
// promotion on nil, discard wrapped in a TransitionFailure otherwise.
// Releasing twice is a no-op.
func (t *Transition) Hold() (release func(err error)) {
	t.holds++
	released := false
	return func(err error) {
		if released || t.settled {
			return
		}
		released = true
		t.holds--
		if err != nil {
			t.settle(&TransitionFailure{Err: err})
			return
		}
		if t.holds == 0 {
			t.settle(nil)
		}
	}
}

// Done is closed once the transition settled, successfully or not.
func (t *Transition) Done() <-chan struct{} { return t.done }

// Err reports the settlement outcome. It is meaningful only after Done is
// closed; nil means the shadow graph was promoted.
func (t *Transition) Err() error { return t.err }

// ShouldYield polls the runtime's cooperative-yield probe. Without one
// configured it always reports false.
func (t *Transition) ShouldYield() bool {
	if t.rt.yieldCheck == nil {
		return false
	}
	return t.rt.yieldCheck()
}

func (t *Transition) settle(failure error) {
	if t.settled {
		return
	}
	t.err = failure
	if failure != nil {
		t.rt.discardTransition(t)
		close(t.done)
		return
	}
	// Promotion runs inside a cycle of its own so the replayed effects and
	// any marks produced by promoted values flush before settle returns.
	rt := t.rt
	ferr := rt.runUpdates(func() error {
		rt.finishTransition(t)
		return nil
	}, false)
	if ferr != nil && t.err == nil {
		t.err = &TransitionFailure{Err: ferr}
	}
}

// finishTransition promotes the shadow graph onto the live one: shadow
// states become live states (re-queueing nodes that still need work),
// deferred disposals execute for real, shadow values replace live values,
// and parked effects rejoin the current cycle. Called with the queues
// open.
func (rt *Runtime) finishTransition(t *Transition) {
	rt.transition = nil
	t.running = false
	t.settled = true

	t.queue.Each(func(c *computation) bool {
		if c.hasTState {
			c.state = c.tState
			c.hasTState = false
		}
		if c.state != stateClean && !c.disposed && !t.disposed.Contains(c) {
			rt.enqueue(c)
		}
		return false
	})

	t.disposed.Each(func(c *computation) bool {
		c.hasTState = false
		rt.cleanNode(c, true)
		return false
	})

	t.sources.Each(func(s *cell) bool {
		if s.hasTValue {
			s.value = s.tValue
			s.tValue = nil
			s.hasTValue = false
		}
		return false
	})

	if len(t.effects) > 0 && rt.effectsOpen {
		rt.effects = append(rt.effects, t.effects...)
		t.effects = nil
	}
	if t.done != nil {
		select {
		case <-t.done:
		default:
			close(t.done)
		}
	}
}

// discardTransition throws the shadow graph away. Live values and states
// were never touched, so clearing the shadow slots restores the world to
// the pre-transition state; only computations created inside the
// transition are torn down, since nothing outside it can have seen them.
func (rt *Runtime) discardTransition(t *Transition) {
	rt.transition = nil
	t.running = false
	t.settled = true

	t.sources.Each(func(s *cell) bool {
		s.tValue = nil
		s.hasTValue = false
		return false
	})
	t.queue.Each(func(c *computation) bool {
		c.hasTState = false
		return false
	})
	t.disposed.Each(func(c *computation) bool {
		c.hasTState = false
		return false
	})
	for i := len(t.created) - 1; i >= 0; i-- {
		rt.disposeComputation(t.created[i])
	}
	t.created = nil
	t.effects = nil
}
