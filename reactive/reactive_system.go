package reactive

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"

	mapset "github.com/deckarep/golang-set/v2"
)

// OnErrorFunc receives errors returned by effects that were re-run by a
// trigger, where there is no caller to return them to.
type OnErrorFunc func(from *EffectRunner, err error)

// ReactiveSystem owns the active effect stack, the effect arena and the proxy
// identity caches. It is not safe for
// concurrent use; all calls must come from one logical call chain.
type ReactiveSystem struct {
	activeStack []*EffectRunner
	shouldTrack bool
	locked      bool
	devMode     bool

	lastEffectID EffectID
	// arena indexes subscribed effects. Dependency sets live on the targets
	// themselves, so the system never keeps a target or an effect alive.
	arena map[EffectID]weak.Pointer[EffectRunner]

	rawToReactive     map[weak.Pointer[Object]]weak.Pointer[Proxy]
	reactiveToRaw     map[weak.Pointer[Proxy]]weak.Pointer[Object]
	rawToReadonly     map[weak.Pointer[Object]]weak.Pointer[Proxy]
	readonlyToRaw     map[weak.Pointer[Proxy]]weak.Pointer[Object]
	readonlyValues    mapset.Set[weak.Pointer[Object]]
	nonReactiveValues mapset.Set[weak.Pointer[Object]]

	// watched holds identities that already have a GC cleanup registered.
	watched mapset.Set[any]
	// graveyard is filled by GC cleanups and drained by reap.
	graveMu   sync.Mutex
	graveyard []any
	buried    atomic.Int32

	logger  *slog.Logger
	metrics MetricsCollector
	onError OnErrorFunc
}

// Option configures a ReactiveSystem.
type Option func(*ReactiveSystem)

// WithLogger sets the logger used for dev-mode warnings and effect errors.
func WithLogger(logger *slog.Logger) Option {
	return func(rs *ReactiveSystem) {
		if logger != nil {
			rs.logger = logger
		}
	}
}

// WithMetrics sets the collector receiving track/trigger/run counters.
func WithMetrics(collector MetricsCollector) Option {
	return func(rs *ReactiveSystem) {
		rs.metrics = collector
	}
}

// WithDevMode toggles development instrumentation: misuse warnings, the
// OnTrack/OnTrigger hooks and old/new value metadata on trigger events.
// Enabled by default.
func WithDevMode(enabled bool) Option {
	return func(rs *ReactiveSystem) {
		rs.devMode = enabled
	}
}

// WithOnError sets the handler for errors returned by effects re-run from a
// trigger. The default logs them at error level.
func WithOnError(onError OnErrorFunc) Option {
	return func(rs *ReactiveSystem) {
		rs.onError = onError
	}
}

func CreateReactiveSystem(opts ...Option) *ReactiveSystem {
	rs := &ReactiveSystem{
		shouldTrack:       true,
		locked:            true,
		devMode:           true,
		arena:             map[EffectID]weak.Pointer[EffectRunner]{},
		rawToReactive:     map[weak.Pointer[Object]]weak.Pointer[Proxy]{},
		reactiveToRaw:     map[weak.Pointer[Proxy]]weak.Pointer[Object]{},
		rawToReadonly:     map[weak.Pointer[Object]]weak.Pointer[Proxy]{},
		readonlyToRaw:     map[weak.Pointer[Proxy]]weak.Pointer[Object]{},
		readonlyValues:    mapset.NewThreadUnsafeSet[weak.Pointer[Object]](),
		nonReactiveValues: mapset.NewThreadUnsafeSet[weak.Pointer[Object]](),
		watched:           mapset.NewThreadUnsafeSet[any](),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(rs)
	}
	if rs.onError == nil {
		rs.onError = func(from *EffectRunner, err error) {
			rs.logger.Error("effect returned an error", "effect", from.ID(), "error", err)
		}
	}
	return rs
}

// PauseTracking suspends dependency recording for the whole system until
// ResumeTracking. Calls do not nest.
func (rs *ReactiveSystem) PauseTracking() {
	rs.shouldTrack = false
}

func (rs *ReactiveSystem) ResumeTracking() {
	rs.shouldTrack = true
}

// IsTracking reports whether a read right now would record a dependency.
func (rs *ReactiveSystem) IsTracking() bool {
	return rs.shouldTrack && len(rs.activeStack) > 0
}

// ActiveEffect returns the innermost running effect, or nil.
func (rs *ReactiveSystem) ActiveEffect() *EffectRunner {
	if len(rs.activeStack) == 0 {
		return nil
	}
	return rs.activeStack[len(rs.activeStack)-1]
}

// DevMode reports whether development instrumentation is enabled.
func (rs *ReactiveSystem) DevMode() bool {
	return rs.devMode
}

func (rs *ReactiveSystem) warn(msg string, args ...any) {
	if !rs.devMode {
		return
	}
	rs.logger.Warn(msg, args...)
	rs.count(MetricWarnings, nil)
}
