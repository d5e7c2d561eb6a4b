package reactive

import (
	"weak"
)

// Reactive returns the mutable proxy for target, creating it on first use.
// Read-only proxies and objects marked read-only resolve to their read-only
// proxy. Values that cannot be observed are returned unchanged.
func (rs *ReactiveSystem) Reactive(target any) any {
	rs.reap()
	if p, ok := target.(*Proxy); ok {
		if _, isReadonly := rs.readonlyToRaw[weak.Make(p)]; isReadonly {
			return p
		}
	}
	if o, ok := target.(*Object); ok && rs.readonlyValues.Contains(weak.Make(o)) {
		return rs.Readonly(o)
	}
	return rs.createReactiveObject(target, rs.rawToReactive, rs.reactiveToRaw, mutableHandlers, mutableCollectionHandlers, false)
}

// Readonly returns the read-only proxy for target. A mutable proxy is
// unwrapped first so read-only proxies always sit directly on raw data.
func (rs *ReactiveSystem) Readonly(target any) any {
	rs.reap()
	if p, ok := target.(*Proxy); ok {
		if raw := rs.reactiveToRaw[weak.Make(p)].Value(); raw != nil {
			target = raw
		}
	}
	return rs.createReactiveObject(target, rs.rawToReadonly, rs.readonlyToRaw, readonlyHandlers, readonlyCollectionHandlers, true)
}

func (rs *ReactiveSystem) createReactiveObject(
	target any,
	toProxy map[weak.Pointer[Object]]weak.Pointer[Proxy],
	toRaw map[weak.Pointer[Proxy]]weak.Pointer[Object],
	base handlers,
	collection handlers,
	readonly bool,
) any {
	if !isObject(target) {
		rs.warn("value cannot be made reactive", "value", target)
		return target
	}
	if o, ok := target.(*Object); ok {
		if observed := toProxy[weak.Make(o)].Value(); observed != nil {
			return observed
		}
	}
	if p, ok := target.(*Proxy); ok {
		if _, known := toRaw[weak.Make(p)]; known {
			return p
		}
	}
	if !rs.canObserve(target) {
		return target
	}

	raw := target.(*Object)
	h := base
	if raw.kind.isCollection() {
		h = collection
	}
	observed := &Proxy{rs: rs, raw: raw, readonly: readonly, handlers: h}

	rawID, proxyID := watch(rs, raw), watch(rs, observed)
	toProxy[rawID] = proxyID
	toRaw[proxyID] = rawID
	rs.ensureTarget(raw)
	return observed
}

// canObserve accepts only raw objects that are neither framework internal
// nor marked non-reactive.
func (rs *ReactiveSystem) canObserve(target any) bool {
	o, ok := target.(*Object)
	if !ok || o.internal {
		return false
	}
	switch o.kind {
	case KindRecord, KindSequence, KindMap, KindSet:
	default:
		return false
	}
	return !rs.nonReactiveValues.Contains(weak.Make(o))
}

// IsReactive reports whether v is a proxy of either variant created by rs.
func (rs *ReactiveSystem) IsReactive(v any) bool {
	p, ok := v.(*Proxy)
	if !ok {
		return false
	}
	id := weak.Make(p)
	_, mutable := rs.reactiveToRaw[id]
	_, readonly := rs.readonlyToRaw[id]
	return mutable || readonly
}

// IsReadonly reports whether v is a read-only proxy created by rs.
func (rs *ReactiveSystem) IsReadonly(v any) bool {
	p, ok := v.(*Proxy)
	if !ok {
		return false
	}
	_, readonly := rs.readonlyToRaw[weak.Make(p)]
	return readonly
}

// ToRaw returns the raw object behind a proxy created by rs, or v itself.
func (rs *ReactiveSystem) ToRaw(v any) any {
	p, ok := v.(*Proxy)
	if !ok {
		return v
	}
	id := weak.Make(p)
	if raw := rs.reactiveToRaw[id].Value(); raw != nil {
		return raw
	}
	if raw := rs.readonlyToRaw[id].Value(); raw != nil {
		return raw
	}
	return v
}

// MarkReadonly makes every later Reactive call on o return its read-only
// proxy.
func (rs *ReactiveSystem) MarkReadonly(o *Object) *Object {
	rs.readonlyValues.Add(watch(rs, o))
	return o
}

// MarkNonReactive keeps o from ever being wrapped.
func (rs *ReactiveSystem) MarkNonReactive(o *Object) *Object {
	rs.nonReactiveValues.Add(watch(rs, o))
	return o
}
