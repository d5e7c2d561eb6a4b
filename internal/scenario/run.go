package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/delaneyj/proxyparty/internal/ctxlog"
	"github.com/delaneyj/proxyparty/reactive"
	"github.com/delaneyj/proxyparty/scheduler"
)

// Trace phases.
const (
	PhaseTrack   = "track"
	PhaseTrigger = "trigger"
	PhaseRun     = "run"
)

// SetupStep names the phase in which objects are created and effects run
// for the first time.
const SetupStep = "setup"

// Event is one line of a trace.
type Event struct {
	Step   string `json:"step"`
	Phase  string `json:"phase"`
	Effect string `json:"effect"`
	Target string `json:"target,omitempty"`
	Op     string `json:"op,omitempty"`
	Key    string `json:"key,omitempty"`
}

// Trace is the outcome of replaying a scenario.
type Trace struct {
	Events []Event        `json:"events"`
	Runs   map[string]int `json:"runs"`
	Values map[string]any `json:"values"`
	Steps  []string       `json:"steps"`
}

// Count returns how many events of phase the trace holds.
func (t *Trace) Count(phase string) int {
	n := 0
	for _, e := range t.Events {
		if e.Phase == phase {
			n++
		}
	}
	return n
}

type config struct {
	systemOpts     []reactive.Option
	recursionLimit int
}

type Option func(*config)

// WithSystemOptions passes options to the reactive system the scenario runs
// in, for example reactive.WithMetrics.
func WithSystemOptions(opts ...reactive.Option) Option {
	return func(c *config) {
		c.systemOpts = append(c.systemOpts, opts...)
	}
}

// WithRecursionLimit caps re-runs of scheduled effects per step.
func WithRecursionLimit(limit int) Option {
	return func(c *config) {
		c.recursionLimit = limit
	}
}

type runner struct {
	rs      *reactive.ReactiveSystem
	queue   *scheduler.Queue
	trace   *Trace
	step    string
	roots   map[string]*reactive.Proxy
	names   map[*reactive.Object]string
	effects map[*reactive.EffectRunner]string
	errs    []error
}

// Run replays sc in a fresh reactive system and records every dependency
// recorded, every trigger delivered and every effect run. Effect failures do
// not stop the replay; they are joined into the returned error alongside the
// trace.
func Run(ctx context.Context, sc *File, opts ...Option) (*Trace, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	cfg := config{recursionLimit: scheduler.DefaultRecursionLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := ctxlog.FromContext(ctx)

	r := &runner{
		queue:   scheduler.New(scheduler.WithLogger(logger), scheduler.WithRecursionLimit(cfg.recursionLimit)),
		trace:   &Trace{Runs: map[string]int{}, Values: map[string]any{}},
		step:    SetupStep,
		roots:   map[string]*reactive.Proxy{},
		names:   map[*reactive.Object]string{},
		effects: map[*reactive.EffectRunner]string{},
	}
	systemOpts := append([]reactive.Option{
		reactive.WithLogger(logger),
		reactive.WithOnError(func(from *reactive.EffectRunner, err error) {
			r.errs = append(r.errs, fmt.Errorf("step %q: effect %q: %w", r.step, r.effects[from], err))
		}),
	}, cfg.systemOpts...)
	r.rs = reactive.CreateReactiveSystem(systemOpts...)
	r.trace.Steps = append(r.trace.Steps, SetupStep)

	for _, o := range sc.Objects {
		raw, err := build(o)
		if err != nil {
			return nil, err
		}
		r.names[raw] = o.Name
		wrap := r.rs.Reactive
		if o.Readonly {
			wrap = r.rs.Readonly
		}
		r.roots[o.Name] = wrap(raw).(*reactive.Proxy)
	}

	for _, e := range sc.Effects {
		if err := r.addEffect(e); err != nil {
			return nil, err
		}
	}
	r.flush()

	for _, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return r.trace, errors.Join(append(r.errs, err)...)
		}
		_, stepLogger := ctxlog.With(ctx, "step", st.Name)
		stepLogger.Debug("Applying scenario step.")
		runs := r.trace.Count(PhaseRun)
		r.step = st.Name
		r.trace.Steps = append(r.trace.Steps, st.Name)
		if err := r.apply(st); err != nil {
			return r.trace, errors.Join(append(r.errs, err)...)
		}
		r.flush()
		stepLogger.Debug("Applied scenario step.", "runs", r.trace.Count(PhaseRun)-runs)
	}

	for name, root := range r.roots {
		r.trace.Values[name] = snapshot(root)
	}
	return r.trace, errors.Join(r.errs...)
}

func (r *runner) addEffect(e *EffectBlock) error {
	reads := make([]path, 0, len(e.Reads))
	for _, s := range e.Reads {
		p, err := parseReadPath(s)
		if err != nil {
			return fmt.Errorf("effect %q: %w", e.Name, err)
		}
		reads = append(reads, p)
	}

	opts := []reactive.EffectOption{
		reactive.WithOnTrack(func(ev reactive.DebuggerEvent) {
			r.record(PhaseTrack, e.Name, ev)
		}),
		reactive.WithOnTrigger(func(ev reactive.DebuggerEvent) {
			r.record(PhaseTrigger, e.Name, ev)
		}),
	}
	if e.Computed {
		opts = append(opts, reactive.WithComputed())
	}
	if e.Scheduled {
		opts = append(opts, reactive.WithScheduler(r.queue.Schedule))
	}

	eff := reactive.Effect(r.rs, func() error {
		r.trace.Runs[e.Name]++
		r.trace.Events = append(r.trace.Events, Event{Step: r.step, Phase: PhaseRun, Effect: e.Name})
		var errs []error
		for _, p := range reads {
			if err := r.read(p); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, append(opts, reactive.WithLazy())...)
	r.effects[eff] = e.Name

	if err := eff.Run(); err != nil {
		r.errs = append(r.errs, fmt.Errorf("step %q: effect %q: %w", r.step, e.Name, err))
	}
	return nil
}

func (r *runner) read(p path) error {
	root := r.roots[p.object]
	switch p.op {
	case reactive.OpIterate:
		c, err := container(root, p)
		if err != nil {
			return err
		}
		c.Keys()
	case reactive.OpHas:
		c, key, err := walk(root, p)
		if err != nil {
			return err
		}
		c.Has(key)
	default:
		c, key, err := walk(root, p)
		if err != nil {
			return err
		}
		c.Get(key)
	}
	return nil
}

func (r *runner) record(phase, effect string, ev reactive.DebuggerEvent) {
	r.trace.Events = append(r.trace.Events, Event{
		Step:   r.step,
		Phase:  phase,
		Effect: effect,
		Target: r.targetName(ev.Target),
		Op:     ev.Type.String(),
		Key:    keyString(ev.Key),
	})
}

func (r *runner) targetName(target any) string {
	if raw, ok := target.(*reactive.Object); ok {
		if name, ok := r.names[raw]; ok {
			return name
		}
		return raw.String()
	}
	return fmt.Sprint(target)
}

func keyString(key reactive.Key) string {
	if key == nil {
		return ""
	}
	return fmt.Sprint(key)
}

func (r *runner) flush() {
	if err := r.queue.Flush(); err != nil {
		r.errs = append(r.errs, fmt.Errorf("step %q: %w", r.step, err))
	}
}

func (r *runner) apply(st *StepBlock) error {
	if st.Unlock {
		r.rs.Unlock()
		defer r.rs.Lock()
	}

	setVal, err := evalExpr(st.Set)
	if err != nil {
		return fmt.Errorf("step %q set: %w", st.Name, err)
	}
	keys, values, err := entries(setVal)
	if err != nil {
		return fmt.Errorf("step %q set: %w", st.Name, err)
	}
	for _, k := range keys {
		p, err := r.writePath(k)
		if err != nil {
			return fmt.Errorf("step %q set: %w", st.Name, err)
		}
		v, err := toGo(values[k])
		if err != nil {
			return fmt.Errorf("step %q set %q: %w", st.Name, k, err)
		}
		c, key, err := walk(r.roots[p.object], p)
		if err != nil {
			return fmt.Errorf("step %q set: %w", st.Name, err)
		}
		c.Set(key, v)
	}

	for _, d := range st.Delete {
		p, err := r.writePath(d)
		if err != nil {
			return fmt.Errorf("step %q delete: %w", st.Name, err)
		}
		c, key, err := walk(r.roots[p.object], p)
		if err != nil {
			return fmt.Errorf("step %q delete: %w", st.Name, err)
		}
		c.Delete(key)
	}

	addVal, err := evalExpr(st.Add)
	if err != nil {
		return fmt.Errorf("step %q add: %w", st.Name, err)
	}
	keys, values, err = entries(addVal)
	if err != nil {
		return fmt.Errorf("step %q add: %w", st.Name, err)
	}
	for _, k := range keys {
		target, err := r.collection(k, reactive.OpAdd)
		if err != nil {
			return fmt.Errorf("step %q add: %w", st.Name, err)
		}
		for _, item := range elements(values[k]) {
			v, err := toGo(item)
			if err != nil {
				return fmt.Errorf("step %q add %q: %w", st.Name, k, err)
			}
			if target.Kind() == reactive.KindSequence {
				target.Push(v)
			} else {
				target.Add(v)
			}
		}
	}

	for _, c := range st.Clear {
		target, err := r.collection(c, reactive.OpClear)
		if err != nil {
			return fmt.Errorf("step %q clear: %w", st.Name, err)
		}
		target.Clear()
	}
	return nil
}

func (r *runner) writePath(s string) (path, error) {
	p, err := parseWritePath(s)
	if err != nil {
		return path{}, err
	}
	if _, ok := r.roots[p.object]; !ok {
		return path{}, fmt.Errorf("%w: unknown object %q", ErrInvalid, p.object)
	}
	return p, nil
}

// collection resolves a path naming a container that accepts op, which is
// OpAdd or OpClear.
func (r *runner) collection(s string, op reactive.OpType) (*reactive.Proxy, error) {
	p, err := splitPath(s)
	if err != nil {
		return nil, err
	}
	root, ok := r.roots[p.object]
	if !ok {
		return nil, fmt.Errorf("%w: unknown object %q", ErrInvalid, p.object)
	}
	c, err := container(root, p)
	if err != nil {
		return nil, err
	}
	switch kind := c.Kind(); {
	case kind == reactive.KindSet:
	case kind == reactive.KindSequence && op == reactive.OpAdd:
	case kind == reactive.KindMap && op == reactive.OpClear:
	default:
		return nil, fmt.Errorf("%w: cannot %s on %s (%s)", reactive.ErrNotCollection, op, s, kind)
	}
	return c, nil
}

// snapshot copies the current contents of p into plain values without
// tracking: records and maps become map[string]any, sequences and sets
// become []any.
func snapshot(p *reactive.Proxy) any {
	plain := func(v any) any {
		if child, ok := v.(*reactive.Proxy); ok {
			return snapshot(child)
		}
		return v
	}

	switch p.Kind() {
	case reactive.KindSequence:
		out := make([]any, p.Len())
		for i := range out {
			out[i] = plain(p.Index(i))
		}
		return out
	case reactive.KindSet:
		out := make([]any, 0, p.Size())
		p.ForEach(func(value, _ any) {
			out = append(out, plain(value))
		})
		return out
	case reactive.KindMap:
		out := make(map[string]any, p.Size())
		p.ForEach(func(value, key any) {
			out[fmt.Sprint(plain(key))] = plain(value)
		})
		return out
	default:
		out := map[string]any{}
		for _, k := range p.Keys() {
			out[fmt.Sprint(k)] = plain(p.Get(k))
		}
		return out
	}
}
