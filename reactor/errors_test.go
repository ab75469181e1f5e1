package reactor_test

import (
	"errors"
	"testing"

	"github.com/reactorgo/reactor/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnhandledErrorReturnsFromWrite(t *testing.T) {
	rt := reactor.NewRuntime()

	boom := errors.New("boom")
	s := reactor.Signal(rt, 1)
	reactor.Effect(rt, func() error {
		if s.Value() > 1 {
			return boom
		}
		return nil
	})

	err := s.SetValue(2)
	var ufe *reactor.UserFunctionError
	require.ErrorAs(t, err, &ufe)
	assert.ErrorIs(t, err, boom)
}

func TestUnhandledSinkReceivesErrors(t *testing.T) {
	var sunk []error
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		sunk = append(sunk, err)
	}))

	boom := errors.New("boom")
	s := reactor.Signal(rt, 1)
	reactor.Effect(rt, func() error {
		if s.Value() > 1 {
			return boom
		}
		return nil
	})

	require.NoError(t, s.SetValue(2))
	require.Len(t, sunk, 1)
	assert.ErrorIs(t, sunk[0], boom)
}

func TestOnErrorCatchesDescendantFailures(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	boom := errors.New("boom")
	s := reactor.Signal(rt, 1)
	var caught []error
	require.NoError(t, reactor.Root(rt, func(func()) error {
		reactor.OnError(rt, func(err error) error {
			caught = append(caught, err)
			return nil
		})
		reactor.Effect(rt, func() error {
			if s.Value() > 1 {
				return boom
			}
			return nil
		})
		return nil
	}))

	require.NoError(t, s.SetValue(2))
	require.Len(t, caught, 1)
	assert.ErrorIs(t, caught[0], boom)
}

func TestNearestHandlerWinsAndCanEscalate(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	boom := errors.New("boom")
	s := reactor.Signal(rt, 1)
	var order []string
	require.NoError(t, reactor.Root(rt, func(func()) error {
		reactor.OnError(rt, func(err error) error {
			order = append(order, "outer")
			return nil
		})
		return reactor.Root(rt, func(func()) error {
			reactor.OnError(rt, func(err error) error {
				order = append(order, "inner")
				return errors.New("rethrow")
			})
			reactor.Effect(rt, func() error {
				if s.Value() > 1 {
					return boom
				}
				return nil
			})
			return nil
		})
	}))

	require.NoError(t, s.SetValue(2))
	// The inner handler sees the failure first; its own error escalates
	// to the outer handler wrapped as a reentrant handler failure.
	assert.Equal(t, []string{"inner", "outer"}, order)
}

func TestReentrantHandlerErrorWrapsBothSides(t *testing.T) {
	var sunk []error
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		sunk = append(sunk, err)
	}))

	boom := errors.New("boom")
	rethrow := errors.New("handler gave up")
	s := reactor.Signal(rt, 1)
	require.NoError(t, reactor.Root(rt, func(func()) error {
		reactor.OnError(rt, func(err error) error {
			return rethrow
		})
		reactor.Effect(rt, func() error {
			if s.Value() > 1 {
				return boom
			}
			return nil
		})
		return nil
	}))

	require.NoError(t, s.SetValue(2))
	require.Len(t, sunk, 1)
	var reentrant *reactor.ReentrantHandlerError
	require.ErrorAs(t, sunk[0], &reentrant)
	assert.ErrorIs(t, reentrant.Handler, rethrow)
	assert.ErrorIs(t, reentrant.Original, boom)
}

func TestHandlerDeferredUntilEffectPhase(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	boom := errors.New("boom")
	s := reactor.Signal(rt, 1)
	var order []string
	require.NoError(t, reactor.Root(rt, func(func()) error {
		reactor.OnError(rt, func(err error) error {
			order = append(order, "handler")
			return nil
		})
		failing := reactor.Computed(rt, func(int) (int, error) {
			if s.Value() > 1 {
				return 0, boom
			}
			return s.Value(), nil
		})
		reactor.Effect(rt, func() error {
			failing.Value()
			order = append(order, "user")
			return nil
		})
		reactor.RenderEffect(rt, func() error {
			s.Value()
			order = append(order, "render")
			return nil
		})
		return nil
	}))
	order = nil

	// The memo fails during the pure update phase. Its handler must not
	// run until the effect phase, after the render tier flushed. The user
	// effect's only source failed, so it does not re-run this cycle.
	require.NoError(t, s.SetValue(2))
	assert.Equal(t, []string{"render", "handler"}, order)
}

func TestCatchErrorContainsFailure(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	boom := errors.New("boom")
	var caught error
	err := reactor.CatchError(rt, func() error {
		return boom
	}, func(err error) error {
		caught = err
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, caught, boom)
}

func TestCatchErrorHandlerGivingUpEscalates(t *testing.T) {
	boom := errors.New("boom")
	rethrow := errors.New("still broken")

	rt := reactor.NewRuntime()
	err := reactor.CatchError(rt, func() error {
		return boom
	}, func(error) error {
		return rethrow
	})
	var reentrant *reactor.ReentrantHandlerError
	require.ErrorAs(t, err, &reentrant)
	assert.ErrorIs(t, err, rethrow)
}

func TestFailedComputationRetriesOnNextRead(t *testing.T) {
	var sunk []error
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		sunk = append(sunk, err)
	}))

	s := reactor.Signal(rt, 1)
	attempts := 0
	c := reactor.Computed(rt, func(int) (int, error) {
		attempts++
		if v := s.Value(); v < 0 {
			return 0, errors.New("negative")
		}
		return s.Value() * 2, nil
	})

	assert.Equal(t, 2, c.Value())

	require.NoError(t, s.SetValue(-1))
	c.Value()
	require.Len(t, sunk, 1)

	// The failed node stays stale. Fixing the source re-runs it.
	require.NoError(t, s.SetValue(3))
	assert.Equal(t, 6, c.Value())
	assert.Equal(t, 3, attempts)
}
