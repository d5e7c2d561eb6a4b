package reactive

import "fmt"

// collectionHandlers serve maps and sets. Keys and values are stored raw.
type collectionHandlers struct {
	readonly bool
}

var (
	mutableCollectionHandlers  handlers = collectionHandlers{}
	readonlyCollectionHandlers handlers = collectionHandlers{readonly: true}
)

func (h collectionHandlers) get(p *Proxy, key Key, _ any) any {
	rs, target := p.rs, p.raw
	key = rs.ToRaw(key)
	rs.trackRaw(target, OpGet, key)
	v, _ := target.data.lookup(key)
	return rs.wrapChild(v, h.readonly)
}

func (h collectionHandlers) has(p *Proxy, key Key) bool {
	rs, target := p.rs, p.raw
	key = rs.ToRaw(key)
	rs.trackRaw(target, OpHas, key)
	return target.hasOwn(key)
}

func (h collectionHandlers) size(p *Proxy) int {
	p.rs.trackRaw(p.raw, OpIterate, nil)
	return p.raw.data.size()
}

func (h collectionHandlers) ownKeys(p *Proxy) []Key {
	p.rs.trackRaw(p.raw, OpIterate, nil)
	return p.raw.ownKeys()
}

func (h collectionHandlers) forEach(p *Proxy, fn func(value, key any)) {
	rs, target := p.rs, p.raw
	rs.trackRaw(target, OpIterate, nil)
	for _, k := range target.ownKeys() {
		v, ok := target.data.lookup(k)
		if !ok {
			continue
		}
		fn(rs.wrapChild(v, h.readonly), rs.wrapChild(k, h.readonly))
	}
}

func (h collectionHandlers) set(p *Proxy, key Key, value any, _ any) bool {
	rs, target := p.rs, p.raw
	if target.kind == KindSet {
		panic(fmt.Errorf("%w: set on %s, use Add", ErrUnsupportedOp, target.kind))
	}
	if h.readonly && rs.locked {
		rs.warn("set operation failed: target is readonly", "key", key, "target", target)
		return true
	}
	key, value = rs.ToRaw(key), rs.ToRaw(value)
	oldValue, hadKey := target.data.lookup(key)
	target.data.store(key, value)
	if !hadKey {
		rs.triggerRaw(target, OpAdd, key, rs.extra(nil, value, nil))
	} else if hasChanged(value, oldValue) {
		rs.triggerRaw(target, OpSet, key, rs.extra(oldValue, value, nil))
	}
	return true
}

func (h collectionHandlers) add(p *Proxy, value any) bool {
	rs, target := p.rs, p.raw
	if target.kind == KindMap {
		panic(fmt.Errorf("%w: add on %s, use Set", ErrUnsupportedOp, target.kind))
	}
	if h.readonly && rs.locked {
		rs.warn("add operation failed: target is readonly", "value", value, "target", target)
		return true
	}
	value = rs.ToRaw(value)
	hadKey := target.hasOwn(value)
	target.data.store(value, value)
	if !hadKey {
		rs.triggerRaw(target, OpAdd, value, rs.extra(nil, value, nil))
	}
	return true
}

func (h collectionHandlers) deleteProperty(p *Proxy, key Key) bool {
	rs, target := p.rs, p.raw
	if h.readonly && rs.locked {
		rs.warn("delete operation failed: target is readonly", "key", key, "target", target)
		return false
	}
	key = rs.ToRaw(key)
	oldValue, hadKey := target.data.lookup(key)
	target.data.remove(key)
	if hadKey {
		rs.triggerRaw(target, OpDelete, key, rs.extra(oldValue, nil, nil))
	}
	return hadKey
}

func (h collectionHandlers) clear(p *Proxy) bool {
	rs, target := p.rs, p.raw
	if h.readonly && rs.locked {
		rs.warn("clear operation failed: target is readonly", "target", target)
		return true
	}
	hadItems := target.data.size() != 0
	var oldTarget any
	if rs.devMode {
		oldTarget = target.clone()
	}
	target.data.clear()
	if hadItems {
		rs.triggerRaw(target, OpClear, nil, rs.extra(nil, nil, oldTarget))
	}
	return hadItems
}
