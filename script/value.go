package script

import (
	"fmt"
	"strconv"
)

// Kind tells which member of the Value union is set.
type Kind int

// The kinds of values that can cross the script boundary.
const (
	KindNil Kind = iota
	KindInteger
	KindNumber
	KindString
	KindBoolean
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindOther:
		return "other"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// A Value is a tagged union of the values a script function can take or
// return.
type Value struct {
	kind     Kind
	integer  int64
	number   float64
	str      string
	boolean  bool
	typeName string
}

// Nil returns the nil value.
func Nil() Value {
	return Value{kind: KindNil}
}

// Int returns an integer value.
func Int(v int64) Value {
	return Value{kind: KindInteger, integer: v}
}

// Word returns the integer value of a 32-bit host word. The word is taken as
// unsigned.
func Word(v uint32) Value {
	return Int(int64(v))
}

// Number returns a non-integral numeric value.
func Number(v float64) Value {
	return Value{kind: KindNumber, number: v}
}

// Str returns a string value.
func Str(v string) Value {
	return Value{kind: KindString, str: v}
}

// Bool returns a boolean value.
func Bool(v bool) Value {
	return Value{kind: KindBoolean, boolean: v}
}

// Other returns an opaque value of the named script type.
func Other(typeName string) Value {
	return Value{kind: KindOther, typeName: typeName}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// AsInt returns the integer held by the value.
func (v Value) AsInt() (int64, bool) {
	return v.integer, v.kind == KindInteger
}

// AsWord returns the low 32 bits of the integer held by the value.
func (v Value) AsWord() (uint32, bool) {
	return uint32(v.integer), v.kind == KindInteger
}

// AsString returns the string held by the value.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// TypeName returns the script-side name of the value's type.
func (v Value) TypeName() string {
	if v.kind == KindOther {
		return v.typeName
	}

	return v.kind.String()
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindInteger:
		return strconv.FormatInt(v.integer, 10)
	case KindNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindBoolean:
		return strconv.FormatBool(v.boolean)
	default:
		return fmt.Sprintf("<%s>", v.typeName)
	}
}
