package jsonval

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/buger/jsonparser"
)

var errTrailingData = errors.New("trailing data after JSON value")

// Parse decodes a single JSON value, preserving the field order of objects.
// When an object repeats a name, the last value wins.
func Parse(data []byte) (Value, error) {
	raw, typ, end, err := jsonparser.Get(data)
	if err != nil {
		return Value{}, fmt.Errorf("jsonval: %w", err)
	}
	if len(bytes.TrimSpace(data[end:])) > 0 {
		return Value{}, fmt.Errorf("jsonval: %w", errTrailingData)
	}
	v, err := decodeValue(raw, typ)
	if err != nil {
		return Value{}, fmt.Errorf("jsonval: %w", err)
	}
	return v, nil
}

// MustParse is Parse that panics on error, for literals in code and tests.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

// decodeValue converts one value as returned by jsonparser. String values
// arrive without their quotes but still escaped.
func decodeValue(raw []byte, typ jsonparser.ValueType) (Value, error) {
	switch typ {
	case jsonparser.Null:
		return Value{}, nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case jsonparser.Number:
		n, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %s: %w", raw, err)
		}
		return Float(n), nil
	case jsonparser.String:
		str, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, fmt.Errorf("invalid string %q: %w", raw, err)
		}
		return Str(str), nil
	case jsonparser.Array:
		arr := []Value{}
		var itemErr error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, typ jsonparser.ValueType, _ int, err error) {
			if itemErr != nil {
				return
			}
			if err != nil {
				itemErr = err
				return
			}
			item, err := decodeValue(value, typ)
			if err != nil {
				itemErr = err
				return
			}
			arr = append(arr, item)
		})
		if err == nil {
			err = itemErr
		}
		if err != nil {
			return Value{}, err
		}
		return Value{kind: Array, arr: arr}, nil
	case jsonparser.Object:
		obj := []Field{}
		err := jsonparser.ObjectEach(raw, func(key, value []byte, typ jsonparser.ValueType, _ int) error {
			item, err := decodeValue(value, typ)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			obj = setField(obj, string(key), item)
			return nil
		})
		if err != nil {
			return Value{}, err
		}
		return Value{kind: Object, obj: obj}, nil
	}
	return Value{}, fmt.Errorf("unexpected JSON value %q", raw)
}

// AppendJSON appends the JSON text of v to buf.
func (v Value) AppendJSON(buf []byte) []byte {
	switch v.kind {
	case Null:
		return append(buf, "null"...)
	case Bool:
		return strconv.AppendBool(buf, v.b)
	case Number:
		return appendNumber(buf, v.n)
	case String:
		return appendString(buf, v.s)
	case Array:
		buf = append(buf, '[')
		for i, item := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = item.AppendJSON(buf)
		}
		return append(buf, ']')
	case Object:
		buf = append(buf, '{')
		for i, f := range v.obj {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendString(buf, f.Name)
			buf = append(buf, ':')
			buf = f.Value.AppendJSON(buf)
		}
		return append(buf, '}')
	default:
		panic(fmt.Errorf("jsonval: invalid kind %v", v.kind))
	}
}

// String returns the compact JSON text of v.
func (v Value) String() string {
	return string(v.AppendJSON(nil))
}

// MarshalJSON fails on NaN and infinite numbers anywhere inside v, which
// AppendJSON would render as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if err := v.checkNumbers(); err != nil {
		return nil, err
	}
	return v.AppendJSON(nil), nil
}

func (v Value) checkNumbers() error {
	switch v.kind {
	case Number:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("jsonval: unsupported number %v", v.n)
		}
	case Array:
		for _, item := range v.arr {
			if err := item.checkNumbers(); err != nil {
				return err
			}
		}
	case Object:
		for _, f := range v.obj {
			if err := f.Value.checkNumbers(); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
		}
	}
	return nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	r, err := Parse(data)
	if err != nil {
		return err
	}
	*v = r
	return nil
}

// Decode unmarshals v into dst using encoding/json rules.
func (v Value) Decode(dst any) error {
	return json.Unmarshal(v.AppendJSON(nil), dst)
}

// appendNumber formats like encoding/json does for float64.
func appendNumber(buf []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(buf, "null"...)
	}
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	buf = strconv.AppendFloat(buf, f, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(buf)
		if n >= 4 && buf[n-4] == 'e' && buf[n-3] == '-' && buf[n-2] == '0' {
			buf[n-2] = buf[n-1]
			buf = buf[:n-1]
		}
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	raw, err := json.Marshal(s)
	if err != nil {
		panic(err) // strings always marshal
	}
	return append(buf, raw...)
}
