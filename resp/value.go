// Package resp implements the RESP2/RESP3 frame codec: an incremental,
// restartable decoder and a RESP2-only command encoder. It is the
// lowest layer of respkit, grounded on the prefix-dispatch decoding
// style of a Socket.IO client's Engine.IO packet parser
// (parsers/engine/parser/parser-v4.go) — a byte tag selects the decode
// path from a small table — generalized here to RESP's richer grammar
// and to the fragmentation-tolerant contract the spec requires: decode
// never blocks on more bytes, it reports NeedMoreData and leaves the
// buffer untouched.
package resp

import "fmt"

// Type tags a Value's RESP variant.
type Type int

const (
	TypeSimpleString Type = iota
	TypeError
	TypeInteger
	TypeDouble
	TypeBoolean
	TypeBulkString
	TypeArray
	TypeMap
	TypeSet
	TypePush
	TypeNil
)

func (t Type) String() string {
	switch t {
	case TypeSimpleString:
		return "SimpleString"
	case TypeError:
		return "Error"
	case TypeInteger:
		return "Integer"
	case TypeDouble:
		return "Double"
	case TypeBoolean:
		return "Boolean"
	case TypeBulkString:
		return "BulkString"
	case TypeArray:
		return "Array"
	case TypeMap:
		return "Map"
	case TypeSet:
		return "Set"
	case TypePush:
		return "Push"
	case TypeNil:
		return "Nil"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ErrorValue is the payload of a TypeError Value: the uppercase prefix
// word ("ERR", "WRONGTYPE", "MOVED", ...) and the remainder of the
// line.
type ErrorValue struct {
	Kind        string
	Description string
}

func (e ErrorValue) String() string { return e.Kind + " " + e.Description }

// Value is the tagged sum every decoded RESP frame is represented as.
// Exactly one of the typed fields below is meaningful, selected by
// Type. BulkString and Array distinguish "empty" from "null" via the
// Null flag, matching RESP's null bulk string / null array.
type Value struct {
	Type Type

	Str     string      // SimpleString
	Err     ErrorValue  // Error
	Int     int64       // Integer
	Dbl     float64     // Double
	Bool    bool        // Boolean
	Bulk    []byte      // BulkString payload; nil + Null==true means RESP null bulk
	Array   []Value     // Array / Map (flat key/value pairs) / Set / Push members
	Null    bool        // true for null bulk string or null array
}

// Nil is the absence sentinel used internally, e.g. for a pub/sub
// message's pattern field when the message arrived via a plain
// (non-pattern) subscription.
var Nil = Value{Type: TypeNil}

// IsNil reports whether v is the Nil sentinel or a null bulk/array.
func (v Value) IsNil() bool {
	return v.Type == TypeNil || ((v.Type == TypeBulkString || v.Type == TypeArray) && v.Null)
}

// NewSimpleString builds a SimpleString Value.
func NewSimpleString(s string) Value { return Value{Type: TypeSimpleString, Str: s} }

// NewBulkString builds a BulkString Value from a byte payload.
func NewBulkString(b []byte) Value { return Value{Type: TypeBulkString, Bulk: b} }

// NewNullBulkString builds the RESP null bulk string.
func NewNullBulkString() Value { return Value{Type: TypeBulkString, Null: true} }

// NewInteger builds an Integer Value.
func NewInteger(i int64) Value { return Value{Type: TypeInteger, Int: i} }

// NewArray builds an Array Value from members.
func NewArray(members ...Value) Value { return Value{Type: TypeArray, Array: members} }

// NewNullArray builds the RESP null array.
func NewNullArray() Value { return Value{Type: TypeArray, Null: true} }

// NewError builds an Error Value.
func NewError(kind, description string) Value {
	return Value{Type: TypeError, Err: ErrorValue{Kind: kind, Description: description}}
}

// AsBulkString projects v onto a []byte, failing if v is not a
// non-null BulkString. This is the kind of explicit, per-target-type
// projection function the design notes call for instead of implicit
// conversions.
func (v Value) AsBulkString() ([]byte, error) {
	if v.Type != TypeBulkString {
		return nil, &WrongTypeError{Want: TypeBulkString, Got: v.Type}
	}
	if v.Null {
		return nil, &WrongTypeError{Want: TypeBulkString, Got: TypeNil}
	}
	return v.Bulk, nil
}

// AsString projects v onto a string: SimpleString or non-null
// BulkString.
func (v Value) AsString() (string, error) {
	switch v.Type {
	case TypeSimpleString:
		return v.Str, nil
	case TypeBulkString:
		if v.Null {
			return "", &WrongTypeError{Want: TypeBulkString, Got: TypeNil}
		}
		return string(v.Bulk), nil
	default:
		return "", &WrongTypeError{Want: TypeBulkString, Got: v.Type}
	}
}

// AsInteger projects v onto an int64.
func (v Value) AsInteger() (int64, error) {
	if v.Type != TypeInteger {
		return 0, &WrongTypeError{Want: TypeInteger, Got: v.Type}
	}
	return v.Int, nil
}

// AsArray projects v onto a non-null slice of Values (Array, Map, Set,
// or Push).
func (v Value) AsArray() ([]Value, error) {
	switch v.Type {
	case TypeArray, TypeMap, TypeSet, TypePush:
		if v.Null {
			return nil, nil
		}
		return v.Array, nil
	default:
		return nil, &WrongTypeError{Want: TypeArray, Got: v.Type}
	}
}

// WrongTypeError reports a failed Value projection.
type WrongTypeError struct {
	Want Type
	Got  Type
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("resp: wrong type: want %s, got %s", e.Want, e.Got)
}
