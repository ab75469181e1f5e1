package reactor

import "sync/atomic"

// Computed creates a lazy derived value. getter receives its own previous
// result and runs only when the value is read (directly or through a
// dependent) after a source changed; a computed nobody observes costs
// nothing per write.
func Computed[T any](rt *Runtime, getter func(prev T) (T, error)) *ReadonlySignal[T] {
	c := newComputation(rt, func(prev any) (any, error) {
		p, _ := prev.(T)
		return getter(p)
	}, kindMemo, nil)
	return &ReadonlySignal[T]{rt: rt, c: c.out}
}

// Effect creates a user-tier effect. fn runs once immediately to capture
// its dependencies, then again after each cycle in which any of them
// changed, always after every render effect of that cycle. The returned
// stop function detaches the effect and disposes everything it owns.
func Effect(rt *Runtime, fn func() error) (stop func()) {
	return rt.createEffect(fn, kindUserEffect)
}

// RenderEffect creates a render-tier effect, scheduled before every user
// effect in each cycle. Output synchronization belongs here so user
// effects observe a fully rendered world.
func RenderEffect(rt *Runtime, fn func() error) (stop func()) {
	return rt.createEffect(fn, kindRenderEffect)
}

func (rt *Runtime) createEffect(fn func() error, k kind) func() {
	c := newComputation(rt, func(any) (any, error) {
		return nil, fn()
	}, k, nil)
	if rt.effectsOpen {
		rt.effects = append(rt.effects, c)
	} else if err := rt.runUpdates(func() error { return rt.updateComputation(c) }, false); err != nil {
		rt.fatal(err)
	}
	return func() { rt.disposeComputation(c) }
}

var nextContextID atomic.Uint64

// Context carries a value down the ownership tree without threading it
// through every intermediate call. Each Context has a distinct key, so
// independent contexts never collide.
type Context[T any] struct {
	rt           *Runtime
	id           uint64
	defaultValue T
}

// CreateContext allocates a fresh context whose Read falls back to
// defaultValue when no ancestor scope wrote it.
func CreateContext[T any](rt *Runtime, defaultValue T) *Context[T] {
	return &Context[T]{rt: rt, id: nextContextID.Add(1), defaultValue: defaultValue}
}

// Write binds value on the current scope. Computations created under this
// scope (and its descendants) read it; siblings and ancestors do not.
func (c *Context[T]) Write(value T) {
	if c.rt.owner == nil {
		return
	}
	c.rt.owner.setContext(c.id, value)
}

// Read returns the nearest ancestor binding, or the context's default.
func (c *Context[T]) Read() T {
	if c.rt.owner != nil {
		if v, ok := c.rt.owner.lookupContext(c.id); ok {
			t, _ := v.(T)
			return t
		}
	}
	return c.defaultValue
}
