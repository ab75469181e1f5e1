package reactor_test

import (
	"testing"

	"github.com/reactorgo/reactor/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectRunsImmediatelyAndOnWrites(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	count := reactor.Signal(rt, 0)
	var seen []int
	reactor.Effect(rt, func() error {
		seen = append(seen, count.Value())
		return nil
	})
	assert.Equal(t, []int{0}, seen)

	require.NoError(t, count.SetValue(1))
	require.NoError(t, count.SetValue(2))
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestEffectStopDetaches(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	count := reactor.Signal(rt, 0)
	runs := 0
	stop := reactor.Effect(rt, func() error {
		count.Value()
		runs++
		return nil
	})
	assert.Equal(t, 1, runs)

	stop()
	require.NoError(t, count.SetValue(1))
	require.NoError(t, count.SetValue(2))
	assert.Equal(t, 1, runs)
}

func TestBatchFlushesOnce(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	a := reactor.Signal(rt, 1)
	b := reactor.Signal(rt, 2)
	sum := reactor.Computed(rt, func(int) (int, error) {
		return a.Value() + b.Value(), nil
	})

	var logged []int
	reactor.Effect(rt, func() error {
		logged = append(logged, sum.Value())
		return nil
	})
	assert.Equal(t, []int{3}, logged)

	// Both writes land in one cycle. The effect must observe only the
	// final consistent sum, never the intermediate 12 or 21.
	require.NoError(t, reactor.Batch(rt, func() {
		a.SetValue(10)
		b.SetValue(20)
	}))
	assert.Equal(t, []int{3, 30}, logged)
}

func TestRenderEffectsRunBeforeUserEffects(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	s := reactor.Signal(rt, 0)
	var order []string
	reactor.Effect(rt, func() error {
		s.Value()
		order = append(order, "user")
		return nil
	})
	reactor.RenderEffect(rt, func() error {
		s.Value()
		order = append(order, "render")
		return nil
	})

	// Creation order is user first, so the initial runs come in creation
	// order. From the next cycle on the render tier goes first.
	order = nil
	require.NoError(t, s.SetValue(1))
	assert.Equal(t, []string{"render", "user"}, order)

	order = nil
	require.NoError(t, s.SetValue(2))
	assert.Equal(t, []string{"render", "user"}, order)
}

func TestWriteInsideEffectStartsFreshCycle(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	source := reactor.Signal(rt, 1)
	derived := reactor.Signal(rt, 0)

	reactor.Effect(rt, func() error {
		return derived.SetValue(source.Value() * 10)
	})
	var seen []int
	reactor.Effect(rt, func() error {
		seen = append(seen, derived.Value())
		return nil
	})
	assert.Equal(t, []int{10}, seen)

	require.NoError(t, source.SetValue(2))
	assert.Equal(t, []int{10, 20}, seen)
}

func TestEffectDedupeAcrossSharedSources(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	a := reactor.Signal(rt, 1)
	double := reactor.Computed(rt, func(int) (int, error) {
		return a.Value() * 2, nil
	})

	runs := 0
	reactor.Effect(rt, func() error {
		// Reads both the signal and a memo over it; one write must still
		// mean one re-run.
		_ = a.Value() + double.Value()
		runs++
		return nil
	})
	assert.Equal(t, 1, runs)

	require.NoError(t, a.SetValue(2))
	assert.Equal(t, 2, runs)
}

func TestEffectCleanupRunsBeforeEachRerun(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	s := reactor.Signal(rt, 0)
	var log []string
	stop := reactor.Effect(rt, func() error {
		v := s.Value()
		log = append(log, "run")
		reactor.OnCleanup(rt, func() {
			log = append(log, "clean")
		})
		_ = v
		return nil
	})
	assert.Equal(t, []string{"run"}, log)

	require.NoError(t, s.SetValue(1))
	assert.Equal(t, []string{"run", "clean", "run"}, log)

	stop()
	assert.Equal(t, []string{"run", "clean", "run", "clean"}, log)
}

func TestPauseTrackingSuspendsSubscription(t *testing.T) {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	tracked := reactor.Signal(rt, 1)
	ignored := reactor.Signal(rt, 2)

	runs := 0
	reactor.Effect(rt, func() error {
		runs++
		tracked.Value()
		rt.PauseTracking()
		ignored.Value()
		rt.ResumeTracking()
		return nil
	})
	assert.Equal(t, 1, runs)

	require.NoError(t, ignored.SetValue(3))
	assert.Equal(t, 1, runs)
	require.NoError(t, tracked.SetValue(4))
	assert.Equal(t, 2, runs)
}
