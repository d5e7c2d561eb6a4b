package reactive_test

import (
	"errors"
	"testing"

	"github.com/delaneyj/proxyparty/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// should run the passed function once when created
func TestEffectRunsOnCreate(t *testing.T) {
	rs, _ := newSystem(t)
	calls := 0
	reactive.Effect(rs, func() error {
		calls++
		return nil
	})
	assert.Equal(t, 1, calls)
}

// should re-run once per real change and ignore same-value writes
func TestEffectCountScenario(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{"count": 0})
	calls := 0
	reactive.Effect(rs, func() error {
		o.Get("count")
		calls++
		return nil
	})

	o.Set("count", 1)
	assert.Equal(t, 2, calls)
	o.Set("count", 1)
	assert.Equal(t, 2, calls)
}

// should not run a lazy effect until asked
func TestEffectLazy(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{"a": 1})
	calls := 0
	e := reactive.Effect(rs, func() error {
		o.Get("a")
		calls++
		return nil
	}, reactive.WithLazy())

	assert.Equal(t, 0, calls)
	o.Set("a", 2)
	assert.Equal(t, 0, calls)

	require.NoError(t, e.Run())
	assert.Equal(t, 1, calls)
	o.Set("a", 3)
	assert.Equal(t, 2, calls)
}

// should reuse the function of an effect passed to Effect
func TestEffectUnwrapsRunner(t *testing.T) {
	rs, _ := newSystem(t)
	calls := 0
	first := reactive.Effect(rs, func() error {
		calls++
		return nil
	})
	second := reactive.Effect(rs, first)

	assert.Equal(t, 2, calls)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.True(t, reactive.IsEffect(second))
	assert.False(t, reactive.IsEffect(func() error { return nil }))
}

// should stop tracking after stop and fire onStop once
func TestEffectStop(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{"a": 1})
	calls, stops := 0, 0
	e := reactive.Effect(rs, func() error {
		o.Get("a")
		calls++
		return nil
	}, reactive.WithOnStop(func() { stops++ }))

	assert.Equal(t, 1, e.DepCount())
	reactive.Stop(e)
	e.Stop()
	assert.Equal(t, 1, stops)
	assert.False(t, e.Active())
	assert.Equal(t, 0, e.DepCount())
	assert.Equal(t, 0, rs.ArenaSize())

	o.Set("a", 2)
	assert.Equal(t, 1, calls)

	// a stopped effect still runs, untracked
	require.NoError(t, e.Run())
	assert.Equal(t, 2, calls)
	o.Set("a", 3)
	assert.Equal(t, 2, calls)
}

// should not recurse when an effect writes a key it reads
func TestEffectSelfCycle(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{"count": 0})
	calls := 0
	reactive.Effect(rs, func() error {
		calls++
		o.Set("count", o.Get("count").(int)+1)
		return nil
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, o.Get("count"))

	o.Set("count", 5)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 6, o.Get("count"))
}

// should dispatch computed effects before plain ones
func TestEffectComputedBeforePlain(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{"k": 0})
	var order []string
	reactive.Effect(rs, func() error {
		o.Get("k")
		return nil
	}, reactive.WithScheduler(func(*reactive.EffectRunner) { order = append(order, "plain") }))
	reactive.Effect(rs, func() error {
		o.Get("k")
		return nil
	}, reactive.WithComputed(), reactive.WithScheduler(func(*reactive.EffectRunner) { order = append(order, "computed") }))

	o.Set("k", 1)
	assert.Equal(t, []string{"computed", "plain"}, order)
}

// should keep subscription order within a bucket
func TestEffectSubscriptionOrder(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{"k": 0})
	var order []int
	for i := range 3 {
		reactive.Effect(rs, func() error {
			o.Get("k")
			return nil
		}, reactive.WithScheduler(func(*reactive.EffectRunner) { order = append(order, i) }))
	}
	o.Set("k", 1)
	assert.Equal(t, []int{0, 1, 2}, order)
}

// should run an effect once when one trigger reaches it through several keys
func TestEffectDedupesWithinTrigger(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{})
	calls := 0
	reactive.Effect(rs, func() error {
		o.Has("x")
		o.Get("x")
		o.Keys()
		calls++
		return nil
	})
	o.Set("x", 1)
	assert.Equal(t, 2, calls)
}

// should pop the active stack when the body fails or panics
func TestEffectErrorPropagation(t *testing.T) {
	boom := errors.New("boom")
	var reported []error
	rs := reactive.CreateReactiveSystem(reactive.WithOnError(func(_ *reactive.EffectRunner, err error) {
		reported = append(reported, err)
	}))
	o := reactiveRecord(rs, map[string]any{"fail": false})

	e := reactive.Effect(rs, func() error {
		if o.Get("fail").(bool) {
			return boom
		}
		return nil
	})
	assert.Empty(t, reported)

	assert.NoError(t, e.Run())
	o.Set("fail", true)
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], boom)
	assert.Nil(t, rs.ActiveEffect())
	assert.ErrorIs(t, e.Run(), boom)

	p := reactive.Effect(rs, func() error {
		if o.Get("fail").(bool) {
			panic("kaboom")
		}
		return nil
	}, reactive.WithLazy())
	assert.Panics(t, func() { _ = p.Run() })
	assert.Nil(t, rs.ActiveEffect())
	assert.False(t, rs.IsTracking())
}

// should track nested effects against the innermost runner
func TestEffectNested(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{"outer": 0, "inner": 0})
	outerCalls, innerCalls := 0, 0
	var inner *reactive.EffectRunner
	outer := reactive.Effect(rs, func() error {
		outerCalls++
		o.Get("outer")
		if inner == nil {
			inner = reactive.Effect(rs, func() error {
				innerCalls++
				o.Get("inner")
				return nil
			})
		}
		return nil
	})
	assert.Nil(t, rs.ActiveEffect())
	assert.Equal(t, 1, outer.DepCount())
	assert.Equal(t, 1, inner.DepCount())

	o.Set("inner", 1)
	assert.Equal(t, 1, outerCalls)
	assert.Equal(t, 2, innerCalls)

	o.Set("outer", 1)
	assert.Equal(t, 2, outerCalls)
	assert.Equal(t, 2, innerCalls)
}

// should not record reads while tracking is paused
func TestEffectPauseTracking(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{"a": 1, "b": 1})
	calls := 0
	e := reactive.Effect(rs, func() error {
		calls++
		o.Get("a")
		rs.PauseTracking()
		o.Get("b")
		rs.ResumeTracking()
		return nil
	})
	assert.Equal(t, 1, e.DepCount())

	o.Set("b", 2)
	assert.Equal(t, 1, calls)
	o.Set("a", 2)
	assert.Equal(t, 2, calls)
}

// should re-derive dependencies on every run
func TestEffectDynamicDependencies(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactiveRecord(rs, map[string]any{"useA": true, "a": 1, "b": 1})
	calls := 0
	reactive.Effect(rs, func() error {
		calls++
		if o.Get("useA").(bool) {
			o.Get("a")
		} else {
			o.Get("b")
		}
		return nil
	})

	o.Set("useA", false)
	assert.Equal(t, 2, calls)
	o.Set("a", 2)
	assert.Equal(t, 2, calls)
	o.Set("b", 2)
	assert.Equal(t, 3, calls)
}

// should report subscriptions and notifications to debug hooks
func TestEffectDebugHooks(t *testing.T) {
	rs, _ := newSystem(t)
	raw := reactive.NewRecord(map[string]any{"a": 1})
	o := rs.Reactive(raw).(*reactive.Proxy)
	var tracked, triggered []reactive.DebuggerEvent
	e := reactive.Effect(rs, func() error {
		o.Get("a")
		o.Get("a")
		o.Keys()
		return nil
	},
		reactive.WithOnTrack(func(ev reactive.DebuggerEvent) { tracked = append(tracked, ev) }),
		reactive.WithOnTrigger(func(ev reactive.DebuggerEvent) { triggered = append(triggered, ev) }),
	)

	require.Len(t, tracked, 2)
	assert.Same(t, e, tracked[0].Effect)
	assert.Same(t, raw, tracked[0].Target)
	assert.Equal(t, reactive.OpGet, tracked[0].Type)
	assert.Equal(t, "a", tracked[0].Key)
	assert.Equal(t, reactive.OpIterate, tracked[1].Type)
	assert.Equal(t, reactive.IterateKey, tracked[1].Key)

	o.Set("a", 2)
	require.Len(t, triggered, 1)
	assert.Equal(t, reactive.OpSet, triggered[0].Type)
	assert.Equal(t, 1, triggered[0].OldValue)
	assert.Equal(t, 2, triggered[0].NewValue)
}

// should skip debug hooks and metadata outside dev mode
func TestEffectDebugHooksDevModeOff(t *testing.T) {
	rs, _ := newSystem(t, reactive.WithDevMode(false))
	o := reactiveRecord(rs, map[string]any{"a": 1})
	hooks := 0
	reactive.Effect(rs, func() error {
		o.Get("a")
		return nil
	},
		reactive.WithOnTrack(func(reactive.DebuggerEvent) { hooks++ }),
		reactive.WithOnTrigger(func(reactive.DebuggerEvent) { hooks++ }),
	)
	o.Set("a", 2)
	assert.Equal(t, 0, hooks)
}

// should let external primitives join the graph through Track and Trigger
func TestEffectManualTrackTrigger(t *testing.T) {
	rs, _ := newSystem(t)
	raw := reactive.NewRecord(nil)
	calls := 0
	reactive.Effect(rs, func() error {
		rs.Track(raw, reactive.OpGet, "custom")
		calls++
		return nil
	})
	require.Len(t, rs.Subscribers(raw, "custom"), 1)

	rs.Trigger(raw, reactive.OpSet, "other", nil)
	assert.Equal(t, 1, calls)
	rs.Trigger(raw, reactive.OpSet, "custom", nil)
	assert.Equal(t, 2, calls)

	// never tracked: no-op
	rs.Trigger(reactive.NewRecord(nil), reactive.OpSet, "custom", nil)
	assert.Equal(t, 2, calls)
}
