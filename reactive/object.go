package reactive

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
)

// Kind is the closed set of container shapes that can be observed.
type Kind uint8

const (
	KindRecord Kind = iota
	KindSequence
	KindMap
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindSequence:
		return "sequence"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	default:
		return "unknown"
	}
}

func (k Kind) isCollection() bool {
	return k == KindMap || k == KindSet
}

// Accessor is a record property backed by functions instead of a stored
// value. Both functions receive the receiver the access went through, which
// is the proxy when the access happened through one.
type Accessor struct {
	Get func(receiver any) any
	Set func(receiver any, value any)
}

// container is the per-shape storage behind an Object. It only sees own
// entries; prototype delegation lives on Object.
type container interface {
	lookup(key Key) (any, bool)
	store(key Key, value any) bool
	remove(key Key) bool
	keys() []Key
	size() int
	clear()
	clone() container
}

// Object is a raw, unobserved container. Wrap it with
// ReactiveSystem.Reactive or ReactiveSystem.Readonly to observe it.
type Object struct {
	targetDeps
	kind     Kind
	data     container
	proto    any
	internal bool
}

// NewRecord returns a plain record holding fields. Keys are inserted in
// sorted order so enumeration is deterministic.
func NewRecord(fields map[string]any) *Object {
	o := &Object{kind: KindRecord, data: newOrderedData()}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o.data.store(name, fields[name])
	}
	return o
}

// NewSequence returns an array-like container holding items.
func NewSequence(items ...any) *Object {
	return &Object{kind: KindSequence, data: &sequenceData{items: slices.Clone(items)}}
}

// NewMap returns an empty insertion-ordered map. Keys must be comparable.
func NewMap() *Object {
	return &Object{kind: KindMap, data: newOrderedData()}
}

// NewSet returns an insertion-ordered set holding members. Members must be
// comparable.
func NewSet(members ...any) *Object {
	o := &Object{kind: KindSet, data: newOrderedData()}
	for _, m := range members {
		o.data.store(m, m)
	}
	return o
}

// Kind reports the container shape.
func (o *Object) Kind() Kind {
	return o.kind
}

// Put writes key directly to the raw storage without notifying anyone and
// returns o. For sets the value is ignored and key becomes a member.
func (o *Object) Put(key Key, value any) *Object {
	if o.kind == KindSet {
		value = key
	}
	o.data.store(key, value)
	return o
}

// Lookup reads an own entry of the raw storage without tracking.
func (o *Object) Lookup(key Key) (any, bool) {
	return o.data.lookup(key)
}

// Len returns the number of own entries; for sequences it is the length.
func (o *Object) Len() int {
	return o.data.size()
}

// SetPrototype makes a record delegate reads and writes of missing keys to
// proto, which must be a record *Object or a *Proxy over one.
func (o *Object) SetPrototype(proto any) *Object {
	if o.kind != KindRecord {
		panic(fmt.Errorf("%w: prototype on %s", ErrUnsupportedOp, o.kind))
	}
	switch p := proto.(type) {
	case nil:
		o.proto = nil
	case *Object:
		o.proto = p
	case *Proxy:
		o.proto = p
	default:
		panic(fmt.Errorf("%w: prototype must be an object, got %T", ErrUnsupportedOp, proto))
	}
	return o
}

// Prototype returns the record's prototype, or nil.
func (o *Object) Prototype() any {
	return o.proto
}

// MarkInternal flags o as owned by the framework. Internal objects are
// never wrapped.
func (o *Object) MarkInternal() *Object {
	o.internal = true
	return o
}

func (o *Object) String() string {
	return fmt.Sprintf("%s(%d)", o.kind, o.data.size())
}

func (o *Object) hasOwn(key Key) bool {
	_, ok := o.data.lookup(key)
	return ok
}

// get resolves key along the prototype chain, invoking accessors with
// receiver.
func (o *Object) get(key Key, receiver any) any {
	if v, ok := o.data.lookup(key); ok {
		if acc, ok := v.(*Accessor); ok {
			if acc.Get == nil {
				return nil
			}
			return acc.Get(receiver)
		}
		return v
	}
	switch p := o.proto.(type) {
	case *Object:
		return p.get(key, receiver)
	case *Proxy:
		return p.getWithReceiver(key, receiver)
	}
	return nil
}

func (o *Object) has(key Key) bool {
	if o.hasOwn(key) {
		return true
	}
	switch p := o.proto.(type) {
	case *Object:
		return p.has(key)
	case *Proxy:
		return p.Has(key)
	}
	return false
}

// set performs an ordinary write: own accessors are invoked, own data
// entries and missing keys are defined on the receiver, and keys missing
// here are looked up on the prototype with the same receiver.
func (o *Object) set(key Key, value any, receiver any) bool {
	if v, ok := o.data.lookup(key); ok {
		if acc, ok := v.(*Accessor); ok {
			if acc.Set == nil {
				return false
			}
			acc.Set(receiver, value)
			return true
		}
		return defineOn(receiver, key, value)
	}
	switch p := o.proto.(type) {
	case *Object:
		return p.set(key, value, receiver)
	case *Proxy:
		return p.setWithReceiver(key, value, receiver)
	}
	return defineOn(receiver, key, value)
}

func (o *Object) deleteKey(key Key) bool {
	return o.data.remove(key)
}

func (o *Object) ownKeys() []Key {
	return o.data.keys()
}

func (o *Object) clone() *Object {
	return &Object{kind: o.kind, data: o.data.clone(), proto: o.proto, internal: o.internal}
}

func defineOn(receiver any, key Key, value any) bool {
	var raw *Object
	switch r := receiver.(type) {
	case *Object:
		raw = r
	case *Proxy:
		raw = r.raw
	default:
		return false
	}
	if existing, ok := raw.data.lookup(key); ok {
		if _, isAccessor := existing.(*Accessor); isAccessor {
			return false
		}
	}
	return raw.data.store(key, value)
}

// orderedData backs records, maps and sets.
type orderedData struct {
	order   []Key
	entries map[Key]any
}

func newOrderedData() *orderedData {
	return &orderedData{entries: map[Key]any{}}
}

func (d *orderedData) lookup(key Key) (any, bool) {
	v, ok := d.entries[key]
	return v, ok
}

func (d *orderedData) store(key Key, value any) bool {
	if _, ok := d.entries[key]; !ok {
		d.order = append(d.order, key)
	}
	d.entries[key] = value
	return true
}

func (d *orderedData) remove(key Key) bool {
	if _, ok := d.entries[key]; !ok {
		return true
	}
	delete(d.entries, key)
	for i, k := range d.order {
		if k == key {
			d.order = slices.Delete(d.order, i, i+1)
			break
		}
	}
	return true
}

func (d *orderedData) keys() []Key {
	return slices.Clone(d.order)
}

func (d *orderedData) size() int {
	return len(d.order)
}

func (d *orderedData) clear() {
	d.order = nil
	d.entries = map[Key]any{}
}

func (d *orderedData) clone() container {
	c := &orderedData{order: slices.Clone(d.order), entries: make(map[Key]any, len(d.entries))}
	for k, v := range d.entries {
		c.entries[k] = v
	}
	return c
}

// hole marks a sequence slot that was never written or was deleted.
type hole struct{}

// sequenceData backs sequences. Own keys are the written indices plus
// LengthKey.
type sequenceData struct {
	items []any
}

func (d *sequenceData) lookup(key Key) (any, bool) {
	switch k := key.(type) {
	case int:
		if k < 0 || k >= len(d.items) {
			return nil, false
		}
		if _, isHole := d.items[k].(hole); isHole {
			return nil, false
		}
		return d.items[k], true
	case string:
		if k == LengthKey {
			return len(d.items), true
		}
	}
	return nil, false
}

func (d *sequenceData) store(key Key, value any) bool {
	switch k := key.(type) {
	case int:
		if k < 0 {
			return false
		}
		d.grow(k + 1)
		d.items[k] = value
		return true
	case string:
		if k != LengthKey {
			return false
		}
		n, ok := value.(int)
		if !ok || n < 0 {
			return false
		}
		if n < len(d.items) {
			clear(d.items[n:])
			d.items = d.items[:n]
			return true
		}
		d.grow(n)
		return true
	}
	return false
}

func (d *sequenceData) grow(n int) {
	for len(d.items) < n {
		d.items = append(d.items, hole{})
	}
}

func (d *sequenceData) remove(key Key) bool {
	switch k := key.(type) {
	case int:
		if k >= 0 && k < len(d.items) {
			d.items[k] = hole{}
		}
		return true
	case string:
		return k != LengthKey
	}
	return true
}

func (d *sequenceData) keys() []Key {
	keys := make([]Key, 0, len(d.items)+1)
	for i, v := range d.items {
		if _, isHole := v.(hole); !isHole {
			keys = append(keys, i)
		}
	}
	return append(keys, LengthKey)
}

func (d *sequenceData) size() int {
	return len(d.items)
}

func (d *sequenceData) clear() {
	d.items = nil
}

func (d *sequenceData) clone() container {
	return &sequenceData{items: slices.Clone(d.items)}
}

// isObject reports whether v is a reference-like value. Everything else is
// a primitive that can never be observed.
func isObject(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case *Object, *Proxy:
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Struct, reflect.Array,
		reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return true
	}
	return false
}

// hasChanged reports whether a write of next over prev is a real change.
// Values that cannot be compared are always treated as changed.
func hasChanged(next, prev any) bool {
	if next == nil || prev == nil {
		return next != prev
	}
	if reflect.TypeOf(next) != reflect.TypeOf(prev) {
		return true
	}
	if !reflect.ValueOf(next).Comparable() {
		return true
	}
	return next != prev
}
