// Package jsonval is a tagged-variant representation of JSON values.
//
// A Value is one of Null, Bool, Number, String, Array or Object. Objects keep
// the order their fields were added or parsed in, so "the first field" of a
// document is well defined; equality of objects ignores that order.
//
// Numbers follow the JSON number model and are held as float64.
//
// Values are immutable from the outside: methods that change a value (With,
// Without) return a modified copy and never alias the receiver's storage.
package jsonval

import (
	"fmt"
	"math"
)

type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

var kindNames = [...]string{
	Null:   "null",
	Bool:   "bool",
	Number: "number",
	String: "string",
	Array:  "array",
	Object: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a JSON value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  []Field
}

// Field is a single name/value pair of an object.
type Field struct {
	Name  string
	Value Value
}

func F(name string, v Value) Field {
	return Field{name, v}
}

func NullValue() Value { return Value{} }

func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

func Float(n float64) Value { return Value{kind: Number, n: n} }

func Int(n int64) Value { return Value{kind: Number, n: float64(n)} }

func Str(s string) Value { return Value{kind: String, s: s} }

// Arr builds an array value. The items are copied.
func Arr(items ...Value) Value {
	return Value{kind: Array, arr: append(make([]Value, 0, len(items)), items...)}
}

// Obj builds an object value from fields, in order. A repeated name replaces
// the earlier field's value but keeps its position.
func Obj(fields ...Field) Value {
	v := Value{kind: Object, obj: make([]Field, 0, len(fields))}
	for _, f := range fields {
		v.obj = setField(v.obj, f.Name, f.Value)
	}
	return v
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == Null }
func (v Value) IsObject() bool   { return v.kind == Object }
func (v Value) IsArray() bool    { return v.kind == Array }
func (v Value) AsBool() bool     { return v.kind == Bool && v.b }
func (v Value) AsString() string { return v.s }

// AsFloat returns the number held by v, or 0 for non-numbers.
func (v Value) AsFloat() float64 {
	if v.kind != Number {
		return 0
	}
	return v.n
}

// AsInt returns the number held by v truncated to int64, or 0 for non-numbers.
func (v Value) AsInt() int64 {
	if v.kind != Number || math.IsNaN(v.n) {
		return 0
	}
	return int64(v.n)
}

// Len returns the number of items of an array or fields of an object.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.obj)
	default:
		return 0
	}
}

// Index returns the i-th array item, or null when out of range.
func (v Value) Index(i int) Value {
	if v.kind != Array || i < 0 || i >= len(v.arr) {
		return Value{}
	}
	return v.arr[i]
}

// Items returns a copy of the array items.
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return append([]Value(nil), v.arr...)
}

// Fields returns a copy of the object fields in order.
func (v Value) Fields() []Field {
	if v.kind != Object {
		return nil
	}
	return append([]Field(nil), v.obj...)
}

// FirstField returns the first field of an object.
func (v Value) FirstField() (Field, bool) {
	if v.kind != Object || len(v.obj) == 0 {
		return Field{}, false
	}
	return v.obj[0], true
}

// Lookup returns the named field of an object.
func (v Value) Lookup(name string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	for _, f := range v.obj {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Get returns the named field of an object, or null.
func (v Value) Get(name string) Value {
	r, _ := v.Lookup(name)
	return r
}

// With returns a copy of the object with the named field set. An existing
// field keeps its position; a new one is appended. Non-objects are returned
// unchanged.
func (v Value) With(name string, fv Value) Value {
	if v.kind != Object {
		return v
	}
	obj := make([]Field, len(v.obj), len(v.obj)+1)
	copy(obj, v.obj)
	return Value{kind: Object, obj: setField(obj, name, fv)}
}

// Without returns a copy of the object with the named field removed.
func (v Value) Without(name string) Value {
	if v.kind != Object {
		return v
	}
	obj := make([]Field, 0, len(v.obj))
	for _, f := range v.obj {
		if f.Name != name {
			obj = append(obj, f)
		}
	}
	return Value{kind: Object, obj: obj}
}

func setField(obj []Field, name string, v Value) []Field {
	for i := range obj {
		if obj[i].Name == name {
			obj[i].Value = v
			return obj
		}
	}
	return append(obj, Field{name, v})
}
