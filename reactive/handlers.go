package reactive

// baseHandlers serve records and sequences.
type baseHandlers struct {
	readonly bool
}

var (
	mutableHandlers  handlers = baseHandlers{}
	readonlyHandlers handlers = baseHandlers{readonly: true}
)

func (h baseHandlers) get(p *Proxy, key Key, receiver any) any {
	rs, target := p.rs, p.raw
	res := target.get(key, receiver)
	if isBuiltInSymbol(key) {
		return res
	}
	if r, ok := res.(refLike); ok {
		return r.refValue()
	}
	rs.trackRaw(target, OpGet, key)
	return rs.wrapChild(res, h.readonly)
}

func (h baseHandlers) set(p *Proxy, key Key, value any, receiver any) bool {
	if h.readonly && p.rs.locked {
		p.rs.warn("set operation failed: target is readonly", "key", key, "target", p.raw)
		return true
	}
	return mutableSet(p, key, value, receiver)
}

func mutableSet(p *Proxy, key Key, value any, receiver any) bool {
	rs, target := p.rs, p.raw
	value = rs.ToRaw(value)
	hadKey := target.hasOwn(key)
	oldValue := target.get(key, target)
	if r, ok := oldValue.(refLike); ok && !IsRef(value) {
		r.setRefValue(value)
		return true
	}

	result := target.set(key, value, receiver)
	// A write that reached target through a prototype lookup from another
	// receiver is reported by the receiver's own proxy.
	if !result || target != rawOf(receiver) {
		return result
	}
	if !hadKey {
		rs.triggerRaw(target, OpAdd, key, rs.extra(nil, value, nil))
	} else if hasChanged(value, oldValue) {
		rs.triggerRaw(target, OpSet, key, rs.extra(oldValue, value, nil))
	}
	return result
}

func (h baseHandlers) deleteProperty(p *Proxy, key Key) bool {
	rs, target := p.rs, p.raw
	if h.readonly && rs.locked {
		rs.warn("delete operation failed: target is readonly", "key", key, "target", target)
		return true
	}
	hadKey := target.hasOwn(key)
	oldValue := target.get(key, target)
	result := target.deleteKey(key)
	if result && hadKey {
		rs.triggerRaw(target, OpDelete, key, rs.extra(oldValue, nil, nil))
	}
	return result
}

func (h baseHandlers) has(p *Proxy, key Key) bool {
	result := p.raw.has(key)
	p.rs.trackRaw(p.raw, OpHas, key)
	return result
}

func (h baseHandlers) ownKeys(p *Proxy) []Key {
	p.rs.trackRaw(p.raw, OpIterate, nil)
	return p.raw.ownKeys()
}

func (rs *ReactiveSystem) trackRaw(target *Object, op OpType, key Key) {
	rs.reap()
	rs.track(target, target, op, key)
}

func (rs *ReactiveSystem) triggerRaw(target *Object, op OpType, key Key, extra *ExtraInfo) {
	rs.reap()
	rs.trigger(target, target, op, key, extra)
}

// extra builds trigger metadata, which only exists in dev mode.
func (rs *ReactiveSystem) extra(oldValue, newValue, oldTarget any) *ExtraInfo {
	if !rs.devMode {
		return nil
	}
	return &ExtraInfo{OldValue: oldValue, NewValue: newValue, OldTarget: oldTarget}
}

// wrapChild lazily wraps an object read through a proxy in the variant of
// that proxy.
func (rs *ReactiveSystem) wrapChild(v any, readonly bool) any {
	if !isObject(v) {
		return v
	}
	if readonly {
		return rs.Readonly(v)
	}
	return rs.Reactive(v)
}

func rawOf(receiver any) *Object {
	switch r := receiver.(type) {
	case *Proxy:
		return r.raw
	case *Object:
		return r
	}
	return nil
}
