// Package jval models JSON argument payloads as a tagged value type.
// Objects remember key order, numbers keep their source text, and
// serialization is total for any value built through the constructors.
package jval

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Kind identifies which JSON shape a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one JSON value. The zero Value is null.
type Value struct {
	kind   Kind
	b      bool
	num    json.Number
	str    string
	items  []*Value
	keys   []string
	fields map[string]*Value
}

// Null returns the JSON null value.
func Null() *Value {
	return &Value{kind: KindNull}
}

// Bool returns a JSON boolean.
func Bool(b bool) *Value {
	return &Value{kind: KindBool, b: b}
}

// String returns a JSON string.
func String(s string) *Value {
	return &Value{kind: KindString, str: s}
}

// Int returns a JSON number from an integer.
func Int(i int64) *Value {
	return &Value{kind: KindNumber, num: json.Number(strconv.FormatInt(i, 10))}
}

// Float returns a JSON number from a float.
func Float(f float64) *Value {
	return &Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Number returns a JSON number carrying its source text.
func Number(n json.Number) *Value {
	return &Value{kind: KindNumber, num: n}
}

// Array returns a JSON array of the given items.
func Array(items ...*Value) *Value {
	return &Value{kind: KindArray, items: items}
}

// Object returns an empty JSON object. Keys keep insertion order.
func Object() *Value {
	return &Value{kind: KindObject, fields: make(map[string]*Value)}
}

// Kind reports the shape of v. A nil Value is null.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// Set adds or replaces a field on an object and returns the object for
// chaining. Replacing keeps the key's original position. Setting a nil
// value stores null. Calling Set on a non-object is a programming
// error and panics.
func (v *Value) Set(key string, val *Value) *Value {
	if v.kind != KindObject {
		panic("jval: Set on non-object value")
	}
	if val == nil {
		val = Null()
	}
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = val
	return v
}

// Get returns the field for key on an object.
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.kind != KindObject {
		return nil, false
	}
	val, ok := v.fields[key]
	return val, ok
}

// Keys returns object keys in insertion/document order.
func (v *Value) Keys() []string {
	if v == nil {
		return nil
	}
	return append([]string(nil), v.keys...)
}

// Append adds items to an array and returns it for chaining.
func (v *Value) Append(items ...*Value) *Value {
	if v.kind != KindArray {
		panic("jval: Append on non-array value")
	}
	for _, it := range items {
		if it == nil {
			it = Null()
		}
		v.items = append(v.items, it)
	}
	return v
}

// Items returns array items in order.
func (v *Value) Items() []*Value {
	if v == nil {
		return nil
	}
	return v.items
}

// Len returns the number of fields or items.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.keys)
	default:
		return 0
	}
}

// BoolVal returns the boolean payload (false for other kinds).
func (v *Value) BoolVal() bool {
	if v == nil {
		return false
	}
	return v.b
}

// StringVal returns the string payload ("" for other kinds).
func (v *Value) StringVal() string {
	if v == nil {
		return ""
	}
	return v.str
}

// NumberVal returns the number payload ("" for other kinds).
func (v *Value) NumberVal() json.Number {
	if v == nil {
		return ""
	}
	return v.num
}

// MarshalJSON serializes the value. It never fails for values built
// through the constructors.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) write(buf *bytes.Buffer) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		n := string(v.num)
		if n == "" {
			n = "0"
		}
		buf.WriteString(n)
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return fmt.Errorf("encode string: %w", err)
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.write(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("encode key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.fields[k].write(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown kind %d", int(v.kind))
	}
	return nil
}

// String renders the value as compact JSON.
func (v *Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "null"
	}
	return string(b)
}

// Parse builds a Value from JSON text, preserving object key order and
// number formatting.
func Parse(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseNext(dec)
	if err != nil {
		return nil, err
	}

	// Only EOF may follow the first value: a second token means more
	// JSON, any other error means non-JSON trailing bytes.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func parseNext(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj := Object()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("read object key: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := parseNext(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("read object end: %w", err)
			}
			return obj, nil
		case '[':
			arr := Array()
			for dec.More() {
				item, err := parseNext(dec)
				if err != nil {
					return nil, err
				}
				arr.Append(item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("read array end: %w", err)
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}
