package reactor

// state is the three-state lazy evaluation lifecycle of a computation.
type state uint8

const (
	// stateClean means the cached value is current.
	stateClean state = iota
	// stateStale means a direct source changed and the computation must
	// fully re-run.
	stateStale
	// statePending means an ancestor in the dependency chain is stale, so
	// whether this computation needs to re-run is not yet known.
	statePending
)

// kind tags the closed set of computation variants.
type kind uint8

const (
	kindMemo kind = iota
	kindRenderEffect
	kindUserEffect
)

// Runtime holds the whole reactive graph: the active owner scope, the
// active listener, the per-cycle pending queues and the global tick.
//
// A Runtime is not safe for concurrent use. One goroutine drives it; async
// work re-enters only through a transition hold's release function.
type Runtime struct {
	owner    *scope
	listener *computation

	updates     []*computation
	updatesOpen bool
	effects     []*computation
	effectsOpen bool

	// execCount increments once per update cycle and is compared against
	// each computation's updatedAt stamp to avoid re-running a node twice
	// in the same cycle. Starts at 1 so updatedAt == 0 always reads as
	// "never ran".
	execCount uint64

	transition *Transition

	unhandled  func(error)
	yieldCheck func() bool

	pauseStack []*computation
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithUnhandled installs a sink that receives every error no scope handler
// claimed. Without a sink, unhandled errors propagate to the caller of the
// outermost write or batch, and value getters panic with the typed error.
func WithUnhandled(fn func(error)) Option {
	return func(rt *Runtime) { rt.unhandled = fn }
}

// WithYieldCheck installs the host environment's cooperative-yield probe.
// Long-running work inside a transition may poll it via
// Transition.ShouldYield to decide whether to pause and resume later.
func WithYieldCheck(fn func() bool) Option {
	return func(rt *Runtime) { rt.yieldCheck = fn }
}

// NewRuntime creates an empty reactive graph.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{execCount: 1}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// PauseTracking stops dependency registration until ResumeTracking.
// Reads performed while paused do not subscribe the current computation.
func (rt *Runtime) PauseTracking() {
	rt.pauseStack = append(rt.pauseStack, rt.listener)
	rt.listener = nil
}

// ResumeTracking restores the listener saved by the matching PauseTracking.
func (rt *Runtime) ResumeTracking() {
	lastIdx := len(rt.pauseStack) - 1
	rt.listener = rt.pauseStack[lastIdx]
	rt.pauseStack = rt.pauseStack[:lastIdx]
}

// fatal disposes of an error that has already walked the handler chain and
// found nobody. With no sink configured the only remaining surface is a
// panic, since value getters cannot return errors.
func (rt *Runtime) fatal(err error) {
	if err == nil {
		return
	}
	if rt.unhandled != nil {
		rt.unhandled(err)
		return
	}
	panic(err)
}
