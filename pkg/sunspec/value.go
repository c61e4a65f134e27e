package sunspec

import (
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// Meta is the decode status of a Value.
type Meta uint8

const (
	MetaNull Meta = iota
	MetaOk
	MetaNotImplemented
	MetaError
)

func (m Meta) String() string {
	switch m {
	case MetaNull:
		return "null"
	case MetaOk:
		return "ok"
	case MetaNotImplemented:
		return "ni"
	case MetaError:
		return "error"
	}
	return fmt.Sprintf("meta(%d)", uint8(m))
}

func (m Meta) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Subscript selects which TypeSpec subscript is active.
type Subscript uint8

const (
	SubNone Subscript = iota
	SubLength
	SubScale
	SubName
)

// TypeSpec is a Type plus at most one subscript: a string length, a literal
// scale exponent or the name of a sibling point.
type TypeSpec struct {
	Type  Type
	Sub   Subscript
	Len   int
	Scale int
	Name  string
}

func Spec(t Type) TypeSpec {
	return TypeSpec{Type: t}
}

func StringSpec(length int) TypeSpec {
	return TypeSpec{Type: TypeString, Sub: SubLength, Len: length}
}

func ScaledSpec(t Type, exponent int) TypeSpec {
	return TypeSpec{Type: t, Sub: SubScale, Scale: exponent}
}

func RefSpec(t Type, name string) TypeSpec {
	return TypeSpec{Type: t, Sub: SubName, Name: name}
}

// Size returns the number of wire bytes used by the type spec.
func (ts TypeSpec) Size() (int, error) {
	if ts.Type == TypeString {
		if ts.Len < 0 {
			return 0, fmt.Errorf("%w: negative string length %d", ErrInvalidType, ts.Len)
		}
		return ts.Len, nil
	}
	return SizeOf(ts.Type)
}

// Registers returns the number of 16 bit registers used by the type spec.
func (ts TypeSpec) Registers() (int, error) {
	size, err := ts.Size()
	if err != nil {
		return 0, err
	}
	return (size + 1) / 2, nil
}

func (ts TypeSpec) String() string {
	switch ts.Sub {
	case SubLength:
		return fmt.Sprintf("%s[%d]", ts.Type, ts.Len)
	case SubScale:
		return fmt.Sprintf("%s[%d]", ts.Type, ts.Scale)
	case SubName:
		return fmt.Sprintf("%s[%s]", ts.Type, ts.Name)
	}
	return ts.Type.String()
}

// Payload is the decoded content of a Value. The concrete type is one of
// I16, U16, I32, U32, I64, U64, F32, F64 or Str.
type Payload interface {
	payload()
}

type (
	I16 int16
	U16 uint16
	I32 int32
	U32 uint32
	I64 int64
	U64 uint64
	F32 float32
	F64 float64
	Str string
)

func (I16) payload() {}
func (U16) payload() {}
func (I32) payload() {}
func (U32) payload() {}
func (I64) payload() {}
func (U64) payload() {}
func (F32) payload() {}
func (F64) payload() {}
func (Str) payload() {}

// NaN and infinities have no JSON form, they render as null.
func (f F32) MarshalJSON() ([]byte, error) {
	return marshalFloat(float64(f), 32)
}

func (f F64) MarshalJSON() ([]byte, error) {
	return marshalFloat(float64(f), 64)
}

func marshalFloat(f float64, bitSize int) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, bitSize), nil
}

// Value is a decoded data point.
type Value struct {
	Name    string
	Spec    TypeSpec
	Meta    Meta
	Payload Payload
	Raw     []byte
	// Index is the 1-based repetition of the block that produced the value, 0
	// outside repeating blocks.
	Index int
	// Scale is the resolved power of ten exponent.
	Scale int
	Units string
	Label string
}

// NameWithIndex returns the name with a two digit repetition suffix for
// values produced by a repeating block.
func (v Value) NameWithIndex() string {
	if v.Index > 0 {
		return fmt.Sprintf("%s,%02d", v.Name, v.Index)
	}
	return v.Name
}

func (v Value) Type() Type {
	return v.Spec.Type
}

// IsZeroAccumulator reports whether v is an accumulator that reads 0.
func (v Value) IsZeroAccumulator() bool {
	if !IsAccumulator(v.Spec.Type) || v.Meta != MetaOk {
		return false
	}
	u, ok := v.Uint()
	return ok && u == 0
}

// Int returns the payload as a signed integer.
func (v Value) Int() (int64, bool) {
	switch p := v.Payload.(type) {
	case I16:
		return int64(p), true
	case U16:
		return int64(p), true
	case I32:
		return int64(p), true
	case U32:
		return int64(p), true
	case I64:
		return int64(p), true
	case U64:
		if p > math.MaxInt64 {
			return 0, false
		}
		return int64(p), true
	}
	return 0, false
}

// Uint returns the payload as an unsigned integer.
func (v Value) Uint() (uint64, bool) {
	switch p := v.Payload.(type) {
	case U16:
		return uint64(p), true
	case U32:
		return uint64(p), true
	case U64:
		return uint64(p), true
	case I16, I32, I64:
		i, _ := v.Int()
		if i < 0 {
			return 0, false
		}
		return uint64(i), true
	}
	return 0, false
}

// Float returns the unscaled payload as a float64.
func (v Value) Float() (float64, bool) {
	switch p := v.Payload.(type) {
	case F32:
		return float64(p), true
	case F64:
		return float64(p), true
	case U64:
		return float64(p), true
	}
	if i, ok := v.Int(); ok {
		return float64(i), true
	}
	return 0, false
}

// Text returns the payload of a string value.
func (v Value) Text() (string, bool) {
	s, ok := v.Payload.(Str)
	return string(s), ok
}

// Scaled returns the numeric payload multiplied by 10^Scale. It reports false
// for non numeric or not implemented values.
func (v Value) Scaled() (decimal.Decimal, bool) {
	if v.Meta != MetaOk || !IsNumeric(v.Spec.Type) {
		return decimal.Zero, false
	}
	exp := int32(v.Scale)
	switch p := v.Payload.(type) {
	case F32:
		f := float64(p)
		if math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(float32(p)).Shift(exp), true
	case F64:
		f := float64(p)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(f).Shift(exp), true
	case U64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(p)), exp), true
	}
	i, ok := v.Int()
	if !ok {
		return decimal.Zero, false
	}
	return decimal.New(i, exp), true
}

func (v Value) String() string {
	if v.Meta != MetaOk {
		return fmt.Sprintf("%s=<%s>", v.NameWithIndex(), v.Meta)
	}
	if d, ok := v.Scaled(); ok {
		return fmt.Sprintf("%s=%s%s", v.NameWithIndex(), d.String(), v.Units)
	}
	return fmt.Sprintf("%s=%v", v.NameWithIndex(), v.Payload)
}
