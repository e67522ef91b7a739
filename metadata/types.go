package metadata

import (
	"fmt"
)

// TypeCode identifies a wire type in metadata.
type TypeCode uint8

// The zero TypeCode is unit, so a zero Type is a valid "no result" return.
const (
	TypeUnit TypeCode = iota
	TypeU8
	TypeI8
	TypeU16
	TypeI16
	TypeU32
	TypeI32
	TypeU64
	TypeI64
	TypeF32
	TypeF64
	TypeBool
	TypeString
	TypeBytes
	TypeDuration
	TypeOption
	TypeSequence
	TypeMap
	TypeRecord
	TypeEnum
	TypeCallbackInterface
)

var typeNames = map[TypeCode]string{
	TypeU8:                "u8",
	TypeI8:                "i8",
	TypeU16:               "u16",
	TypeI16:               "i16",
	TypeU32:               "u32",
	TypeI32:               "i32",
	TypeU64:               "u64",
	TypeI64:               "i64",
	TypeF32:               "f32",
	TypeF64:               "f64",
	TypeBool:              "bool",
	TypeString:            "string",
	TypeBytes:             "bytes",
	TypeDuration:          "duration",
	TypeOption:            "option",
	TypeSequence:          "sequence",
	TypeMap:               "map",
	TypeRecord:            "record",
	TypeEnum:              "enum",
	TypeCallbackInterface: "callback_interface",
	TypeUnit:              "unit",
}

func (c TypeCode) String() string {
	if s, ok := typeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(c))
}

func (c TypeCode) valid() bool {
	return c <= TypeCallbackInterface
}

// Type is a metadata type reference.
// Inner is set for option and sequence, Key and Inner for map, and Name for
// record, enum and callback interface references.
type Type struct {
	Inner *Type
	Key   *Type
	Name  string
	Code  TypeCode
}

// Prim returns a type with no parameters.
func Prim(code TypeCode) Type {
	return Type{Code: code}
}

// Unit is the return type of methods without a result.
var Unit = Type{Code: TypeUnit}

func OptionOf(inner Type) Type {
	return Type{Code: TypeOption, Inner: &inner}
}

func SequenceOf(inner Type) Type {
	return Type{Code: TypeSequence, Inner: &inner}
}

func MapOf(key, value Type) Type {
	return Type{Code: TypeMap, Key: &key, Inner: &value}
}

func Named(code TypeCode, name string) Type {
	return Type{Code: code, Name: name}
}

// Equal reports whether two type references describe the same shape.
func (t Type) Equal(o Type) bool {
	if t.Code != o.Code || t.Name != o.Name {
		return false
	}
	if !equalPtr(t.Inner, o.Inner) {
		return false
	}
	return equalPtr(t.Key, o.Key)
}

func equalPtr(a, b *Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (t Type) String() string {
	switch t.Code {
	case TypeOption:
		return "option<" + t.Inner.String() + ">"
	case TypeSequence:
		return "list<" + t.Inner.String() + ">"
	case TypeMap:
		return "map<" + t.Key.String() + ", " + t.Inner.String() + ">"
	case TypeRecord, TypeEnum, TypeCallbackInterface:
		return t.Name
	default:
		return t.Code.String()
	}
}

func (t Type) validate() error {
	if !t.Code.valid() {
		return fmt.Errorf("unknown type code %d", uint8(t.Code))
	}
	switch t.Code {
	case TypeOption, TypeSequence:
		if t.Inner == nil {
			return fmt.Errorf("%s without element type", t.Code)
		}
		return t.Inner.validate()
	case TypeMap:
		if t.Key == nil || t.Inner == nil {
			return fmt.Errorf("map without key or value type")
		}
		if err := t.Key.validate(); err != nil {
			return err
		}
		return t.Inner.validate()
	case TypeRecord, TypeEnum, TypeCallbackInterface:
		if t.Name == "" {
			return fmt.Errorf("%s reference without name", t.Code)
		}
	}
	return nil
}
