package reactive_test

import (
	"testing"

	"github.com/delaneyj/proxyparty/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// should return the same proxy for repeated wraps and round-trip to raw
func TestRegistryIdempotentWrapping(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactive.NewRecord(map[string]any{"a": 1})

	p := rs.Reactive(o)
	assert.Same(t, p, rs.Reactive(o))
	assert.Same(t, p, rs.Reactive(p))
	assert.Same(t, o, rs.ToRaw(p))
	assert.Same(t, o, rs.ToRaw(o))
	assert.Equal(t, 7, rs.ToRaw(7))
	assert.True(t, rs.IsReactive(p))
	assert.False(t, rs.IsReadonly(p))
	assert.False(t, rs.IsReactive(o))
}

// should prefer the read-only proxy when both are requested
func TestRegistryReadonlyPrecedence(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactive.NewRecord(map[string]any{"a": 1})

	ro := rs.Readonly(o)
	assert.Same(t, ro, rs.Reactive(ro))
	assert.Same(t, ro, rs.Readonly(ro))
	assert.True(t, rs.IsReadonly(ro))
	assert.True(t, rs.IsReactive(ro))
	assert.Same(t, o, rs.ToRaw(ro))

	p := rs.Reactive(o)
	assert.NotSame(t, p, ro)
	assert.Same(t, ro, rs.Readonly(p))
}

// should leave values that cannot be observed untouched
func TestRegistryNonObservable(t *testing.T) {
	rs, spy := newSystem(t)

	assert.Equal(t, 42, rs.Reactive(42))
	assert.Equal(t, "s", rs.Readonly("s"))
	assert.True(t, spy.HasWarnWithMessage("value cannot be made reactive").WithAttr("value").Assert())

	spy.Reset()
	type point struct{ X, Y int }
	pt := &point{1, 2}
	assert.Same(t, pt, rs.Reactive(pt))
	assert.Equal(t, 0, spy.RecordCount())
}

// should honour read-only and non-reactive marks
func TestRegistryMarks(t *testing.T) {
	rs, _ := newSystem(t)

	frozen := rs.MarkReadonly(reactive.NewRecord(map[string]any{"a": 1}))
	p := rs.Reactive(frozen)
	assert.True(t, rs.IsReadonly(p))
	assert.Same(t, rs.Readonly(frozen), p)

	plain := rs.MarkNonReactive(reactive.NewRecord(nil))
	assert.Same(t, plain, rs.Reactive(plain))
	assert.Same(t, plain, rs.Readonly(plain))

	internal := reactive.NewRecord(nil).MarkInternal()
	assert.Same(t, internal, rs.Reactive(internal))

	parent := rs.Reactive(reactive.NewRecord(map[string]any{"plain": plain})).(*reactive.Proxy)
	assert.Same(t, plain, parent.Get("plain"))
}

// should pick collection handlers for maps and sets
func TestRegistryHandlerSelection(t *testing.T) {
	rs, _ := newSystem(t)

	m := rs.Reactive(reactive.NewMap()).(*reactive.Proxy)
	assert.Equal(t, reactive.KindMap, m.Kind())
	assert.NotPanics(t, func() { m.Size() })

	r := rs.Reactive(reactive.NewRecord(nil)).(*reactive.Proxy)
	err := recoverError(func() { r.Size() })
	require.Error(t, err)
	assert.ErrorIs(t, err, reactive.ErrNotCollection)
}

// should create an empty dependency entry when a proxy is made
func TestRegistryRegistersTarget(t *testing.T) {
	rs, _ := newSystem(t)
	o := reactive.NewRecord(nil)
	assert.False(t, rs.Observed(o))
	rs.Readonly(o)
	assert.True(t, rs.Observed(o))
}

// should keep systems isolated from each other
func TestRegistrySeparateSystems(t *testing.T) {
	a, _ := newSystem(t)
	b, _ := newSystem(t)
	o := reactive.NewRecord(nil)

	pa := a.Reactive(o)
	assert.False(t, b.IsReactive(pa))
	assert.Same(t, pa, b.ToRaw(pa))
	assert.NotSame(t, pa, b.Reactive(o))
}

func recoverError(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}
