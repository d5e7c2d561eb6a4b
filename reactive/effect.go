package reactive

import "runtime"

// ErrFn is the body of an effect.
type ErrFn = func() error

// EffectID is the stable handle dependency sets store for an effect.
type EffectID uint64

// Scheduler replaces the synchronous re-run of a triggered effect.
type Scheduler func(e *EffectRunner)

// EffectRunner is a tracked computation. Every run re-derives its
// dependencies from scratch.
type EffectRunner struct {
	id        EffectID
	rs        *ReactiveSystem
	fn        ErrFn
	active    bool
	deps      []*depSet
	lazy      bool
	computed  bool
	scheduler Scheduler
	onTrack   func(DebuggerEvent)
	onTrigger func(DebuggerEvent)
	onStop    func()
}

// EffectOption configures an effect at creation.
type EffectOption func(*EffectRunner)

// WithLazy skips the initial run.
func WithLazy() EffectOption {
	return func(e *EffectRunner) { e.lazy = true }
}

// WithComputed marks the effect as a computed runner, which a trigger
// dispatches ahead of plain effects.
func WithComputed() EffectOption {
	return func(e *EffectRunner) { e.computed = true }
}

func WithScheduler(s Scheduler) EffectOption {
	return func(e *EffectRunner) { e.scheduler = s }
}

// WithOnTrack is called whenever the effect gains a subscription. Dev mode
// only.
func WithOnTrack(fn func(DebuggerEvent)) EffectOption {
	return func(e *EffectRunner) { e.onTrack = fn }
}

// WithOnTrigger is called before the effect is dispatched by a trigger. Dev
// mode only.
func WithOnTrigger(fn func(DebuggerEvent)) EffectOption {
	return func(e *EffectRunner) { e.onTrigger = fn }
}

func WithOnStop(fn func()) EffectOption {
	return func(e *EffectRunner) { e.onStop = fn }
}

// Effect wraps fn in a tracked effect and runs it unless WithLazy is given.
// Passing an existing runner reuses its underlying function.
func Effect[F ErrFn | *EffectRunner](rs *ReactiveSystem, fn F, opts ...EffectOption) *EffectRunner {
	var body ErrFn
	switch f := any(fn).(type) {
	case *EffectRunner:
		body = f.fn
	case func() error:
		body = f
	}

	rs.lastEffectID++
	e := &EffectRunner{
		id:     rs.lastEffectID,
		rs:     rs,
		fn:     body,
		active: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	runtime.AddCleanup(e, rs.bury, any(e.id))

	if !e.lazy {
		if err := e.Run(); err != nil {
			rs.onError(e, err)
		}
	}
	return e
}

// Run executes the effect, recording every observable read it performs.
// A stopped effect runs its function without tracking. Running an effect
// that is already on the active stack is a no-op.
func (e *EffectRunner) Run() error {
	rs := e.rs
	if !e.active {
		return e.fn()
	}
	for _, running := range rs.activeStack {
		if running == e {
			return nil
		}
	}

	rs.cleanup(e)
	rs.activeStack = append(rs.activeStack, e)
	defer func() {
		last := len(rs.activeStack) - 1
		rs.activeStack[last] = nil
		rs.activeStack = rs.activeStack[:last]
	}()

	kind := "plain"
	if e.computed {
		kind = "computed"
	}
	rs.count(MetricEffectRuns, map[string]string{"kind": kind})
	return e.fn()
}

// Stop purges the effect's subscriptions and makes it inert. Later runs
// call the function without tracking.
func (e *EffectRunner) Stop() {
	if !e.active {
		return
	}
	e.rs.cleanup(e)
	if e.onStop != nil {
		e.onStop()
	}
	e.active = false
}

// Stop is shorthand for e.Stop().
func Stop(e *EffectRunner) {
	e.Stop()
}

func (e *EffectRunner) ID() EffectID {
	return e.id
}

func (e *EffectRunner) Active() bool {
	return e.active
}

func (e *EffectRunner) Computed() bool {
	return e.computed
}

// Raw returns the function the effect wraps.
func (e *EffectRunner) Raw() ErrFn {
	return e.fn
}

// DepCount returns how many dependency sets the effect is subscribed to.
func (e *EffectRunner) DepCount() int {
	return len(e.deps)
}

// IsEffect reports whether v is an effect runner.
func IsEffect(v any) bool {
	e, ok := v.(*EffectRunner)
	return ok && e != nil
}
