package reactive

// refLike is a boxed reference. Proxies unwrap refs on read and write
// through them on assignment.
type refLike interface {
	refValue() any
	setRefValue(v any)
}

// Ref is a single observable value. Reading Value inside an effect
// subscribes the effect; SetValue notifies it.
type Ref struct {
	targetDeps
	rs    *ReactiveSystem
	value any
}

// NewRef boxes v. Objects are stored as their mutable proxy. An existing
// *Ref is returned as is.
func NewRef(rs *ReactiveSystem, v any) *Ref {
	if r, ok := v.(*Ref); ok {
		return r
	}
	return &Ref{rs: rs, value: rs.convert(v)}
}

func (r *Ref) Value() any {
	r.rs.reap()
	r.rs.track(r, r, OpGet, "")
	return r.value
}

// SetValue replaces the value and notifies subscribers when it changed.
func (r *Ref) SetValue(v any) {
	rs := r.rs
	old := r.value
	r.value = rs.convert(v)
	if !hasChanged(r.value, old) {
		return
	}
	rs.reap()
	rs.trigger(r, r, OpSet, "", rs.extra(old, r.value, nil))
}

func (r *Ref) refValue() any      { return r.Value() }
func (r *Ref) setRefValue(v any) { r.SetValue(v) }

func (rs *ReactiveSystem) convert(v any) any {
	if isObject(v) {
		return rs.Reactive(v)
	}
	return v
}

// ObjectRef is bound to one property of a proxy.
type ObjectRef struct {
	proxy *Proxy
	key   Key
}

func (r *ObjectRef) Value() any {
	return r.proxy.Get(r.key)
}

func (r *ObjectRef) SetValue(v any) {
	r.proxy.Set(r.key, v)
}

func (r *ObjectRef) Key() Key {
	return r.key
}

func (r *ObjectRef) refValue() any      { return r.Value() }
func (r *ObjectRef) setRefValue(v any) { r.SetValue(v) }

// ToRefs returns a ref per own property of p, each reading and writing
// through p. Sequence length is not included.
func ToRefs(p *Proxy) map[Key]*ObjectRef {
	refs := map[Key]*ObjectRef{}
	for _, key := range p.Keys() {
		if p.raw.kind == KindSequence && key == LengthKey {
			continue
		}
		refs[key] = &ObjectRef{proxy: p, key: key}
	}
	return refs
}

// IsRef reports whether v is a boxed reference: a *Ref, a *ObjectRef or a
// computed value.
func IsRef(v any) bool {
	_, ok := v.(refLike)
	return ok
}
