package sunspec

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the size in bytes of the did and length header of a model block.
const HeaderLen = 4

// DecodeData decodes one model block, header included, into a Dataset using
// the model bound to the block's did.
func DecodeData(dids *DidTable, buf []byte, diag Diagnostics) (*Dataset, error) {
	diag = diagnostics(diag)
	if len(buf) < HeaderLen {
		return nil, errTooShort("model header", len(buf), HeaderLen)
	}
	did := binary.BigEndian.Uint16(buf)
	length := int(binary.BigEndian.Uint16(buf[2:]))

	md, ok := dids.Lookup(did)
	if !ok {
		return nil, &UnknownDidError{Did: did}
	}
	m := md.Model
	use := usableLength(md, length, diag)

	payload := buf[HeaderLen:]
	end := min(use*2, len(payload))
	payload = payload[:end]

	ds := &Dataset{Did: md}
	offset := 0
	for bi := range m.Blocks {
		block := &m.Blocks[bi]
		values, n := DecodeBlock(md, block, payload[offset:], diag)
		ds.Values = append(ds.Values, values...)
		offset += n
		if !block.Repeating && n < block.Len*2 {
			break
		}
	}

	if err := ResolveScaleFactors(ds, diag); err != nil {
		return nil, err
	}
	return ds, nil
}

// usableLength validates the header length against the model and returns the
// number of payload registers to decode.
func usableLength(md *ModelDid, length int, diag Diagnostics) int {
	m := md.Model
	w := Warning{Model: m.Name, Did: md.Did, Expected: m.Len, Actual: length}

	if m.BaseLen == m.Len {
		if length == m.Len {
			return length
		}
		if length == m.Len-1 {
			if last, ok := m.LastPoint(); ok && last.Spec.Type == TypePad {
				w.Kind = WarnMissingTrailingPad
				diag.Warn(w)
				return length
			}
		}
		w.Kind = WarnLengthMismatch
		diag.Warn(w)
		return min(length, m.Len)
	}

	if length < m.BaseLen {
		w.Kind = WarnLengthMismatch
		w.Expected = m.BaseLen
		diag.Warn(w)
		return length
	}
	rep := m.Len - m.BaseLen
	if extra := (length - m.BaseLen) % rep; extra != 0 {
		w.Kind = WarnNonMultipleRepeatingLength
		diag.Warn(w)
		return length - extra
	}
	return length
}

// DecodeBlock decodes the points of block from buf and returns the values and
// the number of bytes consumed. A repeating block is decoded as many times as
// whole repetitions fit in buf. Decoding stops at the first point that does
// not fit, emitting WarnTruncatedDevice unless that point is a pad.
func DecodeBlock(md *ModelDid, block *DataPointBlock, buf []byte, diag Diagnostics) ([]Value, int) {
	diag = diagnostics(diag)
	count := 1
	if block.Repeating {
		if block.Len <= 0 {
			return nil, 0
		}
		count = len(buf) / block.Len / 2
	}

	var values []Value
	consumed := 0
	for rep := 1; rep <= count; rep++ {
		for pi := range block.Points {
			dp := &block.Points[pi]
			size, err := dp.Spec.Size()
			if err != nil {
				return values, consumed
			}
			if consumed+size > len(buf) {
				if dp.Spec.Type != TypePad {
					diag.Warn(truncated(md, dp))
				}
				return values, consumed
			}
			v, err := Decode(buf[consumed:], dp.Spec)
			if err != nil {
				return values, consumed
			}
			consumed += (size + 1) / 2 * 2
			if dp.Spec.Type == TypePad {
				continue
			}
			v.Name = dp.Name
			v.Units = dp.Units
			v.Label = dp.Label
			if block.Repeating {
				v.Index = rep
			}
			values = append(values, v)
		}
	}
	return values, consumed
}

func truncated(md *ModelDid, dp *DataPoint) Warning {
	w := Warning{Kind: WarnTruncatedDevice, Point: dp.Name}
	if md != nil {
		w.Did = md.Did
		if md.Model != nil {
			w.Model = md.Model.Name
		}
	}
	return w
}

// ResolveScaleFactors resolves the scale factor name references of the
// numeric values of ds into exponents.
func ResolveScaleFactors(ds *Dataset, diag Diagnostics) error {
	diag = diagnostics(diag)
	for i := range ds.Values {
		v := &ds.Values[i]
		if !IsNumeric(v.Spec.Type) || v.Spec.Sub != SubName {
			continue
		}
		sf, ok := ds.Sibling(v.Spec.Name, v.Index)
		if !ok {
			v.Scale = 0
			diag.Warn(ds.warning(WarnScaleFactorMissing, v.NameWithIndex()))
			continue
		}
		if sf.Spec.Type != TypeScaleFactor {
			return &ScaleFactorReferenceError{Point: v.NameWithIndex(), Ref: sf.NameWithIndex(), Type: sf.Spec.Type}
		}
		if sf.Meta != MetaOk {
			v.Scale = 0
			if v.Meta != MetaNotImplemented && !v.IsZeroAccumulator() {
				diag.Warn(ds.warning(WarnScaleFactorNotImplemented, v.NameWithIndex()))
			}
			continue
		}
		exp, ok := sf.Payload.(I16)
		if !ok {
			return fmt.Errorf("%w: %s payload %T", ErrPayloadMismatch, sf.Name, sf.Payload)
		}
		v.Scale = int(exp)
	}
	return nil
}
