package jsonval

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
)

// From converts a Go value into a Value.
//
// Values, nil, bools, strings, all integer and float kinds, []any,
// map[string]any and json.RawMessage are converted directly; map keys are
// sorted since Go maps carry no order. Anything else goes through
// encoding/json, so structs keep their declared field order.
func From(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Value{}, nil
		}
		return *t, nil
	case nil:
		return Value{}, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return Str(t), nil
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case int32:
		return Int(int64(t)), nil
	case uint64:
		return Float(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("jsonval: invalid number %q: %w", t, err)
		}
		return Float(f), nil
	case json.RawMessage:
		return Parse(t)
	case []Value:
		return Arr(t...), nil
	case []any:
		arr := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := From(item)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, v)
		}
		return Value{kind: Array, arr: arr}, nil
	case map[string]any:
		names := make([]string, 0, len(t))
		for k := range t {
			names = append(names, k)
		}
		slices.Sort(names)
		obj := make([]Field, 0, len(t))
		for _, k := range names {
			v, err := From(t[k])
			if err != nil {
				return Value{}, err
			}
			obj = append(obj, Field{k, v})
		}
		return Value{kind: Object, obj: obj}, nil
	case map[string]Value:
		names := make([]string, 0, len(t))
		for k := range t {
			names = append(names, k)
		}
		slices.Sort(names)
		obj := make([]Field, 0, len(t))
		for _, k := range names {
			obj = append(obj, Field{k, t[k]})
		}
		return Value{kind: Object, obj: obj}, nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Float(float64(rv.Uint())), nil
	}

	raw, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("jsonval: cannot convert %T: %w", x, err)
	}
	return Parse(raw)
}

// MustFrom is From that panics on error.
func MustFrom(x any) Value {
	v, err := From(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Any converts v into plain Go values: nil, bool, float64, string, []any and
// map[string]any.
func (v Value) Any() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.n
	case String:
		return v.s
	case Array:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Any()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.obj))
		for _, f := range v.obj {
			out[f.Name] = f.Value.Any()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep structural equality. Object fields are compared by
// name, regardless of order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.n == b.n
	case String:
		return a.s == b.s
	case Array:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for _, f := range a.obj {
			bv, ok := b.Lookup(f.Name)
			if !ok || !Equal(f.Value, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Equal reports whether v and another are deeply equal.
func (v Value) Equal(another Value) bool {
	return Equal(v, another)
}
