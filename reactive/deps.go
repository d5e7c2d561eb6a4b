package reactive

import (
	"runtime"
	"slices"
	"weak"

	mapset "github.com/deckarep/golang-set/v2"
)

// depSet is the set of effects subscribed to one (target, key) pair, kept
// in subscription order. It stores handles; its owner pins the runners.
type depSet struct {
	owner   *keyDeps
	key     Key
	order   []EffectID
	members mapset.Set[EffectID]
}

func newDepSet(owner *keyDeps, key Key) *depSet {
	return &depSet{owner: owner, key: key, members: mapset.NewThreadUnsafeSet[EffectID]()}
}

func (d *depSet) has(id EffectID) bool {
	return d.members.Contains(id)
}

func (d *depSet) add(e *EffectRunner) {
	if d.members.Contains(e.id) {
		return
	}
	d.members.Add(e.id)
	d.order = append(d.order, e.id)
	d.owner.pin(e)
}

// remove drops id and, once the set is empty, the set itself.
func (d *depSet) remove(id EffectID) {
	if !d.members.Contains(id) {
		return
	}
	d.members.Remove(id)
	if i := slices.Index(d.order, id); i >= 0 {
		d.order = slices.Delete(d.order, i, i+1)
	}
	d.owner.unpin(id)
	if len(d.order) == 0 {
		d.owner.drop(d)
	}
}

func (d *depSet) len() int {
	return len(d.order)
}

type pinnedRunner struct {
	runner *EffectRunner
	refs   int
}

// keyDeps maps the keys of one target to their dependency sets and holds
// the subscribed runners. It hangs off the target, so an effect stays
// reachable exactly as long as something it reads does, or its owner keeps
// the handle.
type keyDeps struct {
	order   []Key
	deps    map[Key]*depSet
	runners map[EffectID]*pinnedRunner
}

func newKeyDeps() *keyDeps {
	return &keyDeps{deps: map[Key]*depSet{}, runners: map[EffectID]*pinnedRunner{}}
}

func (kd *keyDeps) get(key Key) *depSet {
	return kd.deps[key]
}

func (kd *keyDeps) getOrCreate(key Key) *depSet {
	if d, ok := kd.deps[key]; ok {
		return d
	}
	d := newDepSet(kd, key)
	kd.deps[key] = d
	kd.order = append(kd.order, key)
	return d
}

func (kd *keyDeps) drop(d *depSet) {
	if kd.deps[d.key] != d {
		return
	}
	delete(kd.deps, d.key)
	if i := slices.Index(kd.order, d.key); i >= 0 {
		kd.order = slices.Delete(kd.order, i, i+1)
	}
}

func (kd *keyDeps) pin(e *EffectRunner) {
	if p, ok := kd.runners[e.id]; ok {
		p.refs++
		return
	}
	kd.runners[e.id] = &pinnedRunner{runner: e, refs: 1}
}

func (kd *keyDeps) unpin(id EffectID) {
	p, ok := kd.runners[id]
	if !ok {
		return
	}
	if p.refs--; p.refs == 0 {
		delete(kd.runners, id)
	}
}

func (kd *keyDeps) runner(id EffectID) *EffectRunner {
	if p, ok := kd.runners[id]; ok {
		return p.runner
	}
	return nil
}

// targetDeps is embedded in every trackable value. Each system observing
// the value keeps its own keyDeps.
type targetDeps struct {
	bySystem map[*ReactiveSystem]*keyDeps
}

func (t *targetDeps) depsFor(rs *ReactiveSystem, create bool) *keyDeps {
	kd := t.bySystem[rs]
	if kd == nil && create {
		if t.bySystem == nil {
			t.bySystem = map[*ReactiveSystem]*keyDeps{}
		}
		kd = newKeyDeps()
		t.bySystem[rs] = kd
	}
	return kd
}

type trackable interface {
	depsFor(rs *ReactiveSystem, create bool) *keyDeps
}

// ExtraInfo carries debug metadata about a mutation. It is only populated in
// dev mode.
type ExtraInfo struct {
	OldValue  any
	NewValue  any
	OldTarget any
}

// DebuggerEvent is handed to OnTrack and OnTrigger hooks.
type DebuggerEvent struct {
	Effect *EffectRunner
	Target any
	Type   OpType
	Key    Key
	ExtraInfo
}

// Track records the active effect as a subscriber of (target, key). target
// may be a raw *Object, a *Proxy or a *Ref.
func (rs *ReactiveSystem) Track(target any, op OpType, key Key) {
	rs.reap()
	t, raw := trackableOf(target)
	if t == nil {
		return
	}
	rs.track(t, raw, op, key)
}

// Trigger notifies the subscribers of (target, key) that op happened.
func (rs *ReactiveSystem) Trigger(target any, op OpType, key Key, extra *ExtraInfo) {
	rs.reap()
	t, raw := trackableOf(target)
	if t == nil {
		return
	}
	rs.trigger(t, raw, op, key, extra)
}

func (rs *ReactiveSystem) track(t trackable, target any, op OpType, key Key) {
	if !rs.shouldTrack || len(rs.activeStack) == 0 {
		return
	}
	effect := rs.activeStack[len(rs.activeStack)-1]
	if op == OpIterate {
		key = IterateKey
	}

	dep := t.depsFor(rs, true).getOrCreate(key)
	if dep.has(effect.id) {
		return
	}
	dep.add(effect)
	effect.deps = append(effect.deps, dep)
	rs.arena[effect.id] = weak.Make(effect)
	rs.count(MetricTracks, map[string]string{"op": op.String()})

	if rs.devMode && effect.onTrack != nil {
		effect.onTrack(DebuggerEvent{Effect: effect, Target: target, Type: op, Key: key})
	}
}

func (rs *ReactiveSystem) trigger(t trackable, target any, op OpType, key Key, extra *ExtraInfo) {
	depsMap := t.depsFor(rs, false)
	if depsMap == nil {
		return
	}
	rs.count(MetricTriggers, map[string]string{"op": op.String()})

	var computedRunners, plainRunners []*EffectRunner
	seen := mapset.NewThreadUnsafeSet[EffectID]()
	collect := func(dep *depSet) {
		if dep == nil {
			return
		}
		for _, eid := range dep.order {
			if seen.Contains(eid) {
				continue
			}
			e := depsMap.runner(eid)
			if e == nil {
				continue
			}
			seen.Add(eid)
			if e.computed {
				computedRunners = append(computedRunners, e)
			} else {
				plainRunners = append(plainRunners, e)
			}
		}
	}

	raw, isObj := target.(*Object)
	isSequence := isObj && raw.kind == KindSequence

	if op == OpClear {
		for _, k := range depsMap.order {
			collect(depsMap.get(k))
		}
	} else {
		if key != nil {
			collect(depsMap.get(key))
		}
		if op == OpAdd || op == OpDelete {
			if isSequence {
				collect(depsMap.get(LengthKey))
			} else {
				collect(depsMap.get(IterateKey))
			}
		}
		// Shrinking a sequence removes every index at or past the new length.
		if isSequence && op == OpSet && key == LengthKey {
			for _, k := range depsMap.order {
				if i, ok := k.(int); ok && i >= raw.data.size() {
					collect(depsMap.get(k))
				}
			}
		}
	}

	for _, e := range computedRunners {
		rs.scheduleRun(e, target, op, key, extra)
	}
	for _, e := range plainRunners {
		rs.scheduleRun(e, target, op, key, extra)
	}
}

func (rs *ReactiveSystem) scheduleRun(e *EffectRunner, target any, op OpType, key Key, extra *ExtraInfo) {
	if rs.devMode && e.onTrigger != nil {
		evt := DebuggerEvent{Effect: e, Target: target, Type: op, Key: key}
		if extra != nil {
			evt.ExtraInfo = *extra
		}
		e.onTrigger(evt)
	}
	if e.scheduler != nil {
		e.scheduler(e)
		return
	}
	if err := e.Run(); err != nil {
		rs.onError(e, err)
	}
}

// trackChildRun subscribes the active effect to everything child depends
// on. Used by computed values so readers of a computed re-run when its
// sources change.
func (rs *ReactiveSystem) trackChildRun(child *EffectRunner) {
	if !rs.shouldTrack || len(rs.activeStack) == 0 {
		return
	}
	parent := rs.activeStack[len(rs.activeStack)-1]
	for _, dep := range child.deps {
		if dep.has(parent.id) {
			continue
		}
		dep.add(parent)
		parent.deps = append(parent.deps, dep)
		rs.arena[parent.id] = weak.Make(parent)
	}
}

// cleanup removes e from every dependency set it belongs to.
func (rs *ReactiveSystem) cleanup(e *EffectRunner) {
	for _, dep := range e.deps {
		dep.remove(e.id)
	}
	clear(e.deps)
	e.deps = e.deps[:0]
	delete(rs.arena, e.id)
}

// trackableOf returns the value whose dependency sets stand for target,
// along with the raw value reported to hooks. Unknown values yield nil.
func trackableOf(target any) (trackable, any) {
	switch t := target.(type) {
	case *Proxy:
		return t.raw, t.raw
	case *Object:
		return t, t
	case *Ref:
		return t, t
	}
	return nil, nil
}

// ensureTarget creates an empty dependency entry for raw.
func (rs *ReactiveSystem) ensureTarget(raw *Object) {
	raw.depsFor(rs, true)
}

// watch returns the weak identity of ptr, registering a GC cleanup the first
// time ptr is seen. The cleanup only reaches rs, which holds nothing but
// weak references to targets and effects.
func watch[T any](rs *ReactiveSystem, ptr *T) weak.Pointer[T] {
	id := weak.Make(ptr)
	if !rs.watched.Contains(id) {
		rs.watched.Add(id)
		runtime.AddCleanup(ptr, rs.bury, any(id))
	}
	return id
}

// bury runs on the GC cleanup goroutine.
func (rs *ReactiveSystem) bury(id any) {
	rs.graveMu.Lock()
	defer rs.graveMu.Unlock()
	rs.graveyard = append(rs.graveyard, id)
	rs.buried.Add(1)
}

// reap forgets every identity whose referent was collected, and every
// effect the GC reclaimed.
func (rs *ReactiveSystem) reap() {
	if rs.buried.Load() == 0 {
		return
	}
	rs.graveMu.Lock()
	dead := rs.graveyard
	rs.graveyard = nil
	rs.buried.Store(0)
	rs.graveMu.Unlock()

	for _, id := range dead {
		rs.watched.Remove(id)
		switch wp := id.(type) {
		case EffectID:
			if e, ok := rs.arena[wp]; ok && e.Value() == nil {
				delete(rs.arena, wp)
			}
		case weak.Pointer[Object]:
			delete(rs.rawToReactive, wp)
			delete(rs.rawToReadonly, wp)
			rs.readonlyValues.Remove(wp)
			rs.nonReactiveValues.Remove(wp)
		case weak.Pointer[Proxy]:
			delete(rs.reactiveToRaw, wp)
			delete(rs.readonlyToRaw, wp)
		}
	}
}

// Subscribers returns the effects currently subscribed to (target, key), in
// subscription order.
func (rs *ReactiveSystem) Subscribers(target any, key Key) []*EffectRunner {
	t, _ := trackableOf(target)
	if t == nil {
		return nil
	}
	depsMap := t.depsFor(rs, false)
	if depsMap == nil {
		return nil
	}
	dep := depsMap.get(key)
	if dep == nil {
		return nil
	}
	out := make([]*EffectRunner, 0, dep.len())
	for _, eid := range dep.order {
		if e := depsMap.runner(eid); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Observed reports whether target has dependency sets in this system.
func (rs *ReactiveSystem) Observed(target any) bool {
	t, _ := trackableOf(target)
	if t == nil {
		return false
	}
	return t.depsFor(rs, false) != nil
}

// ArenaSize returns the number of live effects holding at least one
// subscription.
func (rs *ReactiveSystem) ArenaSize() int {
	rs.reap()
	return len(rs.arena)
}
