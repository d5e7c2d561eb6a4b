package reactive

import (
	"fmt"
)

// handlers intercept the logical operations on a proxied object.
type handlers interface {
	get(p *Proxy, key Key, receiver any) any
	set(p *Proxy, key Key, value any, receiver any) bool
	deleteProperty(p *Proxy, key Key) bool
	has(p *Proxy, key Key) bool
	ownKeys(p *Proxy) []Key
}

// collectionOps are the extra operations of map and set handlers.
type collectionOps interface {
	add(p *Proxy, value any) bool
	clear(p *Proxy) bool
	size(p *Proxy) int
	forEach(p *Proxy, fn func(value, key any))
}

// Proxy is an observable wrapper over a raw Object. Reads through a proxy
// are tracked and writes trigger the effects that read them. Obtain one with
// ReactiveSystem.Reactive or ReactiveSystem.Readonly.
type Proxy struct {
	rs       *ReactiveSystem
	raw      *Object
	readonly bool
	handlers handlers
}

// Get reads key. Object values come back wrapped in the same variant as p
// and refs come back unwrapped.
func (p *Proxy) Get(key Key) any {
	return p.handlers.get(p, key, p)
}

// Set writes key and reports whether the write was accepted.
func (p *Proxy) Set(key Key, value any) bool {
	return p.handlers.set(p, key, value, p)
}

// Delete removes key and reports whether the delete was accepted.
func (p *Proxy) Delete(key Key) bool {
	return p.handlers.deleteProperty(p, key)
}

// Has reports whether key is present, including on the prototype chain.
func (p *Proxy) Has(key Key) bool {
	return p.handlers.has(p, key)
}

// Keys enumerates the own keys of the object and records an iteration
// dependency.
func (p *Proxy) Keys() []Key {
	if p.raw.kind == KindSequence {
		p.Get(LengthKey)
	}
	return p.handlers.ownKeys(p)
}

// Len returns the length of a sequence or the size of a collection. On
// records it returns the number of own keys.
func (p *Proxy) Len() int {
	switch p.raw.kind {
	case KindSequence:
		n, _ := p.Get(LengthKey).(int)
		return n
	case KindMap, KindSet:
		return p.Size()
	default:
		return len(p.Keys())
	}
}

// Index reads element i of a sequence.
func (p *Proxy) Index(i int) any {
	return p.Get(i)
}

// Push appends values to a sequence and returns the new length.
func (p *Proxy) Push(values ...any) int {
	if p.raw.kind != KindSequence {
		panic(fmt.Errorf("%w: push on %s", ErrUnsupportedOp, p.raw.kind))
	}
	n, _ := p.Get(LengthKey).(int)
	for _, v := range values {
		p.Set(n, v)
		n++
	}
	p.Set(LengthKey, n)
	return n
}

func (p *Proxy) collection() collectionOps {
	ops, ok := p.handlers.(collectionOps)
	if !ok {
		panic(fmt.Errorf("%w: got %s", ErrNotCollection, p.raw.kind))
	}
	return ops
}

// Add inserts value into a set.
func (p *Proxy) Add(value any) bool {
	return p.collection().add(p, value)
}

// Clear removes every entry of a map or set.
func (p *Proxy) Clear() bool {
	return p.collection().clear(p)
}

// Size returns the number of entries of a map or set.
func (p *Proxy) Size() int {
	return p.collection().size(p)
}

// ForEach calls fn for every entry of a map or set in insertion order. For
// sets key and value are the member.
func (p *Proxy) ForEach(fn func(value, key any)) {
	p.collection().forEach(p, fn)
}

// Kind reports the shape of the wrapped object.
func (p *Proxy) Kind() Kind {
	return p.raw.kind
}

// Readonly reports whether p is the read-only variant.
func (p *Proxy) Readonly() bool {
	return p.readonly
}

func (p *Proxy) String() string {
	variant := "reactive"
	if p.readonly {
		variant = "readonly"
	}
	return variant + "(" + p.raw.String() + ")"
}

// getWithReceiver and setWithReceiver serve records that use p as their
// prototype.
func (p *Proxy) getWithReceiver(key Key, receiver any) any {
	return p.handlers.get(p, key, receiver)
}

func (p *Proxy) setWithReceiver(key Key, value any, receiver any) bool {
	return p.handlers.set(p, key, value, receiver)
}
