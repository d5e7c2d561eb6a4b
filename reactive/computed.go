package reactive

import "fmt"

// ComputedRef is a cached derived value. It recomputes lazily, on the first
// read after one of its sources changed.
type ComputedRef[T any] struct {
	rs     *ReactiveSystem
	effect *EffectRunner
	value  T
	dirty  bool
	setter func(T)
}

type ComputedOption[T any] func(*ComputedRef[T])

// WithSetter makes the computed writable; SetValue calls fn.
func WithSetter[T any](fn func(T)) ComputedOption[T] {
	return func(c *ComputedRef[T]) { c.setter = fn }
}

func Computed[T any](rs *ReactiveSystem, getter func() T, opts ...ComputedOption[T]) *ComputedRef[T] {
	c := &ComputedRef[T]{rs: rs, dirty: true}
	for _, opt := range opts {
		opt(c)
	}
	c.effect = Effect(rs, func() error {
		c.value = getter()
		return nil
	},
		WithLazy(),
		WithComputed(),
		WithScheduler(func(*EffectRunner) { c.dirty = true }),
	)
	return c
}

// Value returns the cached value, recomputing it if a source changed. The
// running effect, if any, is subscribed to the computed's sources.
func (c *ComputedRef[T]) Value() T {
	if c.dirty {
		if err := c.effect.Run(); err != nil {
			c.rs.onError(c.effect, err)
		}
		c.dirty = false
	}
	c.rs.trackChildRun(c.effect)
	return c.value
}

func (c *ComputedRef[T]) SetValue(v T) {
	if c.setter == nil {
		c.rs.warn("write operation failed: computed value is readonly")
		return
	}
	c.setter(v)
}

// Effect returns the lazy runner backing the computed.
func (c *ComputedRef[T]) Effect() *EffectRunner {
	return c.effect
}

// Stop detaches the computed from its sources. The cached value is kept.
func (c *ComputedRef[T]) Stop() {
	c.effect.Stop()
}

func (c *ComputedRef[T]) refValue() any {
	return c.Value()
}

func (c *ComputedRef[T]) setRefValue(v any) {
	t, ok := v.(T)
	if !ok {
		c.rs.warn("write operation failed: computed value type mismatch", "value", fmt.Sprintf("%T", v))
		return
	}
	c.SetValue(t)
}
