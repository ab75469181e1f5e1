package reactor

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// symbolErrors is the reserved context key under which a scope stores its
// error handler list. Hashing the name keeps the key out of the range the
// context id counter hands to user contexts.
var symbolErrors = xxhash.Sum64String("reactor.symbol.errors")

// ErrorHandler receives an error caught in its scope. Returning a non-nil
// error escalates to the next handler up the owner chain.
type ErrorHandler func(error) error

// UserFunctionError wraps an error produced by a computation's own
// function.
type UserFunctionError struct {
	Err error
}

func (e *UserFunctionError) Error() string {
	return fmt.Sprintf("computation failed: %v", e.Err)
}

func (e *UserFunctionError) Unwrap() error { return e.Err }

// DisposedAccessError reports a read or write against a cell or
// computation whose owning scope was already disposed.
type DisposedAccessError struct {
	Op string
}

func (e *DisposedAccessError) Error() string {
	return fmt.Sprintf("%s on disposed reactive node", e.Op)
}

// ReentrantHandlerError wraps an error returned by an error handler while
// it was processing another error.
type ReentrantHandlerError struct {
	// Handler is the error the handler itself returned.
	Handler error
	// Original is the error the handler was invoked with.
	Original error
}

func (e *ReentrantHandlerError) Error() string {
	return fmt.Sprintf("error handler failed with %v while handling %v", e.Handler, e.Original)
}

func (e *ReentrantHandlerError) Unwrap() error { return e.Handler }

// TransitionFailure reports that a transition's work failed. Shadow values
// written by the transition were discarded, never promoted.
type TransitionFailure struct {
	Err error
}

func (e *TransitionFailure) Error() string {
	return fmt.Sprintf("transition failed: %v", e.Err)
}

func (e *TransitionFailure) Unwrap() error { return e.Err }

// lookupErrorHandlers walks the owner chain for the nearest scope carrying
// handlers, returning them and the scope they were found on so escalation
// can continue strictly upward from there.
func lookupErrorHandlers(s *scope) ([]ErrorHandler, *scope) {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.context == nil {
			continue
		}
		if v, ok := sc.context[symbolErrors]; ok {
			if fns, ok := v.([]ErrorHandler); ok && len(fns) > 0 {
				return fns, sc
			}
		}
	}
	return nil, nil
}

// routeError walks the owner chain for a handler. With none found the
// error goes to the runtime's unhandled sink, or escalates to the caller
// when no sink is configured. When found during an open cycle, handler
// invocation is deferred to the user effect tier so handlers never observe
// a partially flushed update phase.
func (rt *Runtime) routeError(err error, s *scope) error {
	fns, sc := lookupErrorHandlers(s)
	if len(fns) == 0 {
		if rt.unhandled != nil {
			rt.unhandled(err)
			return nil
		}
		return err
	}
	if rt.effectsOpen {
		pseudo := &computation{
			rt:    rt,
			kind:  kindUserEffect,
			state: stateStale,
			fn: func(any) (any, error) {
				return nil, rt.runErrors(err, fns, sc)
			},
		}
		pseudo.scope.comp = pseudo
		rt.effects = append(rt.effects, pseudo)
		return nil
	}
	return rt.runErrors(err, fns, sc)
}

// runErrors invokes each handler in registration order. A failing handler
// escalates from the parent of the scope the handlers were found on, so
// the search always proceeds upward and terminates.
func (rt *Runtime) runErrors(err error, fns []ErrorHandler, sc *scope) error {
	for _, fn := range fns {
		if herr := fn(err); herr != nil {
			var parent *scope
			if sc != nil {
				parent = sc.parent
			}
			return rt.routeError(&ReentrantHandlerError{Handler: herr, Original: err}, parent)
		}
	}
	return nil
}

// OnError registers a handler on the current scope. Errors thrown by any
// computation owned (directly or transitively) by this scope reach the
// handler unless a closer scope handles them first.
func OnError(rt *Runtime, handler ErrorHandler) {
	if rt.owner == nil {
		return
	}
	if rt.owner.context == nil {
		rt.owner.context = map[uint64]any{}
	}
	fns, _ := rt.owner.context[symbolErrors].([]ErrorHandler)
	rt.owner.context[symbolErrors] = append(fns, handler)
}

// CatchError runs fn under a child scope whose only error handler is
// handler, so failures inside fn are contained without installing the
// handler on the surrounding scope. The returned error is non-nil only
// when the handler chain itself gave up.
func CatchError(rt *Runtime, fn func() error, handler ErrorHandler) error {
	s := &scope{parent: rt.owner}
	s.context = map[uint64]any{symbolErrors: []ErrorHandler{handler}}
	prev := rt.owner
	rt.owner = s
	defer func() { rt.owner = prev }()
	if err := fn(); err != nil {
		return rt.routeError(&UserFunctionError{Err: err}, s)
	}
	return nil
}
