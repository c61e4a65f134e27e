package sunspec

import (
	"fmt"
	"math"
)

// Type is a SunSpec wire type.
type Type uint8

const (
	TypeInt16 Type = iota
	TypeUInt16
	TypeAcc16
	TypeInt32
	TypeUInt32
	TypeFloat32
	TypeAcc32
	TypeInt64
	TypeUInt64
	TypeFloat64
	TypeAcc64
	TypeEnum16
	TypeEnum32
	TypeBitfield16
	TypeBitfield32
	TypeScaleFactor
	TypeString
	TypePad
	TypeUndefined

	typeCount
)

var typeSizes = [typeCount]int{
	TypeInt16:       2,
	TypeUInt16:      2,
	TypeAcc16:       2,
	TypeInt32:       4,
	TypeUInt32:      4,
	TypeFloat32:     4,
	TypeAcc32:       4,
	TypeInt64:       8,
	TypeUInt64:      8,
	TypeFloat64:     8,
	TypeAcc64:       8,
	TypeEnum16:      2,
	TypeEnum32:      4,
	TypeBitfield16:  2,
	TypeBitfield32:  4,
	TypeScaleFactor: 2,
	TypeString:      0,
	TypePad:         2,
	TypeUndefined:   0,
}

var typeNames = [typeCount]string{
	TypeInt16:       "int16",
	TypeUInt16:      "uint16",
	TypeAcc16:       "acc16",
	TypeInt32:       "int32",
	TypeUInt32:      "uint32",
	TypeFloat32:     "float32",
	TypeAcc32:       "acc32",
	TypeInt64:       "int64",
	TypeUInt64:      "uint64",
	TypeFloat64:     "float64",
	TypeAcc64:       "acc64",
	TypeEnum16:      "enum16",
	TypeEnum32:      "enum32",
	TypeBitfield16:  "bitfield16",
	TypeBitfield32:  "bitfield32",
	TypeScaleFactor: "sunssf",
	TypeString:      "string",
	TypePad:         "pad",
	TypeUndefined:   "undef",
}

// sentinel holds the not-implemented bit pattern of a type, right aligned.
type sentinel struct {
	bits  uint64
	valid bool
}

var typeSentinels = [typeCount]sentinel{
	TypeInt16:       {0x8000, true},
	TypeUInt16:      {0xFFFF, true},
	TypeInt32:       {0x80000000, true},
	TypeUInt32:      {0xFFFFFFFF, true},
	TypeInt64:       {0x8000000000000000, true},
	TypeUInt64:      {0xFFFFFFFFFFFFFFFF, true},
	TypeEnum16:      {0xFFFF, true},
	TypeEnum32:      {0xFFFFFFFF, true},
	TypeBitfield16:  {0xFFFF, true},
	TypeBitfield32:  {0xFFFFFFFF, true},
	TypeScaleFactor: {0x8000, true},
	// floats are NaN checked, see Classify
	TypeFloat32: {uint64(math.Float32bits(float32(math.NaN()))), true},
	TypeFloat64: {math.Float64bits(math.NaN()), true},
}

func (t Type) valid() bool {
	return t < typeCount
}

func (t Type) String() string {
	if !t.valid() {
		return fmt.Sprintf("type(%d)", uint8(t))
	}
	return typeNames[t]
}

// ParseType returns the type with the given canonical name.
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return TypeUndefined, fmt.Errorf("%w: %q", ErrInvalidType, name)
}

// SizeOf returns the wire size in bytes of t. Strings report 0, their size comes
// from the TypeSpec length.
func SizeOf(t Type) (int, error) {
	if !t.valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidType, uint8(t))
	}
	return typeSizes[t], nil
}

// IsNumeric reports whether values of t carry a quantity that can be scaled.
func IsNumeric(t Type) bool {
	switch t {
	case TypeInt16, TypeUInt16, TypeAcc16,
		TypeInt32, TypeUInt32, TypeFloat32, TypeAcc32,
		TypeInt64, TypeUInt64, TypeFloat64, TypeAcc64:
		return true
	}
	return false
}

// IsSymbolic reports whether t is an enum or bitfield type.
func IsSymbolic(t Type) bool {
	switch t {
	case TypeEnum16, TypeEnum32, TypeBitfield16, TypeBitfield32:
		return true
	}
	return false
}

// IsAccumulator reports whether t is one of the accumulator types.
func IsAccumulator(t Type) bool {
	return t == TypeAcc16 || t == TypeAcc32 || t == TypeAcc64
}

// Sentinel returns the not-implemented bit pattern for t, right aligned in
// a uint64. ok is false for types without one.
func Sentinel(t Type) (bits uint64, ok bool) {
	if !t.valid() {
		return 0, false
	}
	s := typeSentinels[t]
	return s.bits, s.valid
}

// Classify maps the raw, right aligned bit pattern of a decoded value to its Meta.
func Classify(t Type, raw uint64) Meta {
	switch t {
	case TypeFloat32:
		if math.IsNaN(float64(math.Float32frombits(uint32(raw)))) {
			return MetaNotImplemented
		}
		return MetaOk
	case TypeFloat64:
		if math.IsNaN(math.Float64frombits(raw)) {
			return MetaNotImplemented
		}
		return MetaOk
	}
	if bits, ok := Sentinel(t); ok && bits == raw {
		return MetaNotImplemented
	}
	return MetaOk
}
