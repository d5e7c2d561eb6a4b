package scenario

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/delaneyj/proxyparty/reactive"
)

func parseKind(s string) (reactive.Kind, error) {
	switch s {
	case "", "record":
		return reactive.KindRecord, nil
	case "sequence":
		return reactive.KindSequence, nil
	case "map":
		return reactive.KindMap, nil
	case "set":
		return reactive.KindSet, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalid, s)
}

// evalExpr evaluates a literal expression. Missing optional attributes
// evaluate to null.
func evalExpr(expr hcl.Expression) (cty.Value, error) {
	if expr == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	return v, nil
}

// entries returns the attributes of an object or map value in key order.
func entries(v cty.Value) ([]string, map[string]cty.Value, error) {
	if v.IsNull() {
		return nil, nil, nil
	}
	t := v.Type()
	if !t.IsObjectType() && !t.IsMapType() {
		return nil, nil, fmt.Errorf("%w: expected an object, got %s", ErrInvalid, t.FriendlyName())
	}
	var keys []string
	values := map[string]cty.Value{}
	for it := v.ElementIterator(); it.Next(); {
		k, val := it.Element()
		keys = append(keys, k.AsString())
		values[k.AsString()] = val
	}
	return keys, values, nil
}

// elements returns the members of a list, tuple or set value. A single
// non-collection value is returned as one element.
func elements(v cty.Value) []cty.Value {
	if v.IsNull() {
		return nil
	}
	t := v.Type()
	if !t.IsListType() && !t.IsTupleType() && !t.IsSetType() {
		return []cty.Value{v}
	}
	var out []cty.Value
	for it := v.ElementIterator(); it.Next(); {
		_, val := it.Element()
		out = append(out, val)
	}
	return out
}

// toGo converts a literal into engine values: whole numbers become int,
// objects become records and lists become sequences.
func toGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("%w: value is not known", ErrInvalid)
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case t.IsObjectType() || t.IsMapType():
		keys, values, err := entries(v)
		if err != nil {
			return nil, err
		}
		record := reactive.NewRecord(nil)
		for _, k := range keys {
			gv, err := toGo(values[k])
			if err != nil {
				return nil, err
			}
			record.Put(k, gv)
		}
		return record, nil
	case t.IsListType() || t.IsTupleType() || t.IsSetType():
		var items []any
		for _, ev := range elements(v) {
			gv, err := toGo(ev)
			if err != nil {
				return nil, err
			}
			items = append(items, gv)
		}
		return reactive.NewSequence(items...), nil
	}
	return nil, fmt.Errorf("%w: unsupported value type %s", ErrInvalid, t.FriendlyName())
}

// build creates the raw object an object block declares.
func build(o *ObjectBlock) (*reactive.Object, error) {
	kind, err := parseKind(o.Kind)
	if err != nil {
		return nil, err
	}
	fieldsVal, err := evalExpr(o.Fields)
	if err != nil {
		return nil, fmt.Errorf("object %q fields: %w", o.Name, err)
	}
	itemsVal, err := evalExpr(o.Items)
	if err != nil {
		return nil, fmt.Errorf("object %q items: %w", o.Name, err)
	}

	var raw *reactive.Object
	switch kind {
	case reactive.KindRecord:
		raw = reactive.NewRecord(nil)
	case reactive.KindMap:
		raw = reactive.NewMap()
	case reactive.KindSequence:
		raw = reactive.NewSequence()
	case reactive.KindSet:
		raw = reactive.NewSet()
	}

	keys, values, err := entries(fieldsVal)
	if err != nil {
		return nil, fmt.Errorf("object %q fields: %w", o.Name, err)
	}
	if len(keys) > 0 && (kind == reactive.KindSequence || kind == reactive.KindSet) {
		return nil, fmt.Errorf("%w: object %q: %s takes items, not fields", ErrInvalid, o.Name, kind)
	}
	for _, k := range keys {
		gv, err := toGo(values[k])
		if err != nil {
			return nil, fmt.Errorf("object %q field %q: %w", o.Name, k, err)
		}
		raw.Put(k, gv)
	}

	items := elements(itemsVal)
	if len(items) > 0 && (kind == reactive.KindRecord || kind == reactive.KindMap) {
		return nil, fmt.Errorf("%w: object %q: %s takes fields, not items", ErrInvalid, o.Name, kind)
	}
	for i, item := range items {
		gv, err := toGo(item)
		if err != nil {
			return nil, fmt.Errorf("object %q item %d: %w", o.Name, i, err)
		}
		if kind == reactive.KindSequence {
			raw.Put(i, gv)
		} else {
			raw.Put(gv, gv)
		}
	}
	return raw, nil
}
