package sunspec

import (
	"bytes"
	"encoding/binary"
	"math"
)

const maxRawBytes = 16

// Decode reads one value of the given spec from the start of buf.
//
// A Pad spec consumes its two bytes and yields a value with MetaNull and no
// payload; callers skip it.
func Decode(buf []byte, spec TypeSpec) (Value, error) {
	size, err := spec.Size()
	if err != nil {
		return Value{}, err
	}
	if spec.Type == TypeUndefined {
		return Value{}, ErrInvalidType
	}
	if len(buf) < size {
		return Value{}, errTooShort(spec.Type.String(), len(buf), size)
	}

	v := Value{Spec: spec, Meta: MetaOk}
	raw := min(size, maxRawBytes)
	v.Raw = append([]byte(nil), buf[:raw]...)
	if spec.Sub == SubScale {
		v.Scale = spec.Scale
	}

	var bits uint64
	switch size {
	case 2:
		bits = uint64(binary.BigEndian.Uint16(buf))
	case 4:
		bits = uint64(binary.BigEndian.Uint32(buf))
	case 8:
		bits = binary.BigEndian.Uint64(buf)
	}

	switch spec.Type {
	case TypeInt16, TypeScaleFactor:
		v.Payload = I16(int16(bits))
	case TypeUInt16, TypeAcc16, TypeEnum16, TypeBitfield16:
		v.Payload = U16(uint16(bits))
	case TypeInt32:
		v.Payload = I32(int32(bits))
	case TypeUInt32, TypeAcc32, TypeEnum32, TypeBitfield32:
		v.Payload = U32(uint32(bits))
	case TypeFloat32:
		v.Payload = F32(math.Float32frombits(uint32(bits)))
	case TypeInt64:
		v.Payload = I64(int64(bits))
	case TypeUInt64, TypeAcc64:
		v.Payload = U64(bits)
	case TypeFloat64:
		v.Payload = F64(math.Float64frombits(bits))
	case TypeString:
		s := buf[:size]
		if i := bytes.IndexByte(s, 0); i >= 0 {
			s = s[:i]
		}
		v.Payload = Str(s)
		return v, nil
	case TypePad:
		v.Meta = MetaNull
		return v, nil
	}
	v.Meta = Classify(spec.Type, bits)
	return v, nil
}

// Encode writes v to out in wire order and returns the number of bytes
// written.
func Encode(v Value, out []byte) (int, error) {
	spec := v.Spec
	size, err := spec.Size()
	if err != nil {
		return 0, err
	}
	if spec.Type == TypeUndefined {
		return 0, ErrInvalidType
	}
	if len(out) < size {
		return 0, errTooSmall(spec.Type.String(), len(out), size)
	}

	switch spec.Type {
	case TypePad:
		binary.BigEndian.PutUint16(out, 0xFFFF)
		return size, nil
	case TypeString:
		s, ok := v.Payload.(Str)
		if !ok {
			return 0, ErrPayloadMismatch
		}
		n := copy(out[:size], s)
		clear(out[n:size])
		return size, nil
	}

	bits, err := payloadBits(spec.Type, v.Payload)
	if err != nil {
		return 0, err
	}
	putBits(out, size, bits)
	return size, nil
}

// EncodeNotImplemented writes the not-implemented pattern of spec to out.
// Types without a sentinel are zero filled, pads get 0xFFFF.
func EncodeNotImplemented(spec TypeSpec, out []byte) (int, error) {
	size, err := spec.Size()
	if err != nil {
		return 0, err
	}
	if len(out) < size {
		return 0, errTooSmall(spec.Type.String(), len(out), size)
	}
	if spec.Type == TypePad {
		binary.BigEndian.PutUint16(out, 0xFFFF)
		return size, nil
	}
	bits, ok := Sentinel(spec.Type)
	if !ok {
		clear(out[:size])
		return size, nil
	}
	putBits(out, size, bits)
	return size, nil
}

func putBits(out []byte, size int, bits uint64) {
	switch size {
	case 2:
		binary.BigEndian.PutUint16(out, uint16(bits))
	case 4:
		binary.BigEndian.PutUint32(out, uint32(bits))
	case 8:
		binary.BigEndian.PutUint64(out, bits)
	}
}

func payloadBits(t Type, p Payload) (uint64, error) {
	switch t {
	case TypeInt16, TypeScaleFactor:
		if x, ok := p.(I16); ok {
			return uint64(uint16(x)), nil
		}
	case TypeUInt16, TypeAcc16, TypeEnum16, TypeBitfield16:
		if x, ok := p.(U16); ok {
			return uint64(x), nil
		}
	case TypeInt32:
		if x, ok := p.(I32); ok {
			return uint64(uint32(x)), nil
		}
	case TypeUInt32, TypeAcc32, TypeEnum32, TypeBitfield32:
		if x, ok := p.(U32); ok {
			return uint64(x), nil
		}
	case TypeFloat32:
		if x, ok := p.(F32); ok {
			return uint64(math.Float32bits(float32(x))), nil
		}
	case TypeInt64:
		if x, ok := p.(I64); ok {
			return uint64(x), nil
		}
	case TypeUInt64, TypeAcc64:
		if x, ok := p.(U64); ok {
			return uint64(x), nil
		}
	case TypeFloat64:
		if x, ok := p.(F64); ok {
			return math.Float64bits(float64(x)), nil
		}
	}
	return 0, ErrPayloadMismatch
}
