package sunspec

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// CommonModelDid is the did of the common model every device exposes first.
const CommonModelDid uint16 = 1

// Dataset is the decoded content of one model block.
type Dataset struct {
	Did *ModelDid
	// Index disambiguates repeated models on one device, 0 when the did
	// appears once.
	Index  int
	Values []Value
}

// Model returns the model name of the dataset.
func (ds *Dataset) Model() string {
	if ds.Did == nil || ds.Did.Model == nil {
		return ""
	}
	return ds.Did.Model.Name
}

// Key names the dataset within a device: the model name, suffixed with the
// index when the did repeats.
func (ds *Dataset) Key() string {
	name := ds.Model()
	if name == "" && ds.Did != nil {
		name = fmt.Sprintf("did_%d", ds.Did.Did)
	}
	if ds.Index > 0 {
		return fmt.Sprintf("%s_%d", name, ds.Index)
	}
	return name
}

// Value returns the first value named name.
func (ds *Dataset) Value(name string) (*Value, bool) {
	for i := range ds.Values {
		if ds.Values[i].Name == name {
			return &ds.Values[i], true
		}
	}
	return nil, false
}

// Sibling returns the value named name, preferring one from the same
// repetition, then one outside any repeating block.
func (ds *Dataset) Sibling(name string, index int) (*Value, bool) {
	var first *Value
	var fixed *Value
	for i := range ds.Values {
		v := &ds.Values[i]
		if v.Name != name {
			continue
		}
		if v.Index == index {
			return v, true
		}
		if fixed == nil && v.Index == 0 {
			fixed = v
		}
		if first == nil {
			first = v
		}
	}
	if fixed != nil {
		return fixed, true
	}
	return first, first != nil
}

// Repetitions returns the number of repeating block instances in the dataset.
func (ds *Dataset) Repetitions() int {
	n := 0
	for _, v := range ds.Values {
		n = max(n, v.Index)
	}
	return n
}

// Symbols renders the labels of an enum or bitfield value using the define
// its spec names.
func (ds *Dataset) Symbols(v Value) ([]Symbol, bool) {
	if !IsSymbolic(v.Spec.Type) || v.Spec.Sub != SubName || v.Meta != MetaOk || ds.Did == nil || ds.Did.Model == nil {
		return nil, false
	}
	def, ok := ds.Did.Model.Define(v.Spec.Name)
	if !ok {
		return nil, false
	}
	raw, ok := v.Uint()
	if !ok {
		return nil, false
	}
	switch v.Spec.Type {
	case TypeEnum16, TypeEnum32:
		s, ok := def.Enum(uint32(raw))
		if !ok {
			return nil, false
		}
		return []Symbol{s}, true
	}
	return def.Bits(uint32(raw)), true
}

func (ds *Dataset) warning(kind WarningKind, point string) Warning {
	w := Warning{Kind: kind, Model: ds.Model(), Point: point}
	if ds.Did != nil {
		w.Did = ds.Did.Did
	}
	return w
}

// EncodeDataset serialises ds as a model block, header included, following
// the model layout. Values missing from ds are written as not implemented.
func EncodeDataset(ds *Dataset) ([]byte, error) {
	if ds.Did == nil || ds.Did.Model == nil {
		return nil, fmt.Errorf("%w: dataset without model", ErrUnknownDid)
	}
	m := ds.Did.Model
	reps := ds.Repetitions()

	var payload []byte
	for bi := range m.Blocks {
		block := &m.Blocks[bi]
		count := 1
		if block.Repeating {
			count = reps
		}
		for rep := 1; rep <= count; rep++ {
			index := 0
			if block.Repeating {
				index = rep
			}
			for pi := range block.Points {
				dp := &block.Points[pi]
				regs, err := dp.Spec.Registers()
				if err != nil {
					return nil, err
				}
				buf := make([]byte, regs*2)
				if v, ok := ds.valueAt(dp.Name, index); ok && v.Meta == MetaOk && dp.Spec.Type != TypePad {
					v.Spec = dp.Spec
					_, err = Encode(v, buf)
				} else {
					_, err = EncodeNotImplemented(dp.Spec, buf)
				}
				if err != nil {
					return nil, fmt.Errorf("encode %s: %w", dp.Name, err)
				}
				payload = append(payload, buf...)
			}
		}
	}

	out := make([]byte, HeaderLen, HeaderLen+len(payload))
	binary.BigEndian.PutUint16(out, ds.Did.Did)
	binary.BigEndian.PutUint16(out[2:], uint16(len(payload)/2))
	return append(out, payload...), nil
}

func (ds *Dataset) valueAt(name string, index int) (Value, bool) {
	for _, v := range ds.Values {
		if v.Name == name && v.Index == index {
			return v, true
		}
	}
	return Value{}, false
}

// Device is the set of datasets read from one physical device.
type Device struct {
	Manufacturer string
	Model        string
	Options      string
	Version      string
	SerialNumber string
	Timestamp    time.Time
	Datasets     []*Dataset
}

func NewDevice() *Device {
	return &Device{Timestamp: time.Now()}
}

var identityPoints = []struct {
	names []string
	set   func(d *Device, s string)
}{
	{[]string{"Mn", "C_Manufacturer"}, func(d *Device, s string) { d.Manufacturer = s }},
	{[]string{"Md", "C_Model"}, func(d *Device, s string) { d.Model = s }},
	{[]string{"Opt", "C_Options"}, func(d *Device, s string) { d.Options = s }},
	{[]string{"Vr", "C_Version"}, func(d *Device, s string) { d.Version = s }},
	{[]string{"SN", "C_SerialNumber"}, func(d *Device, s string) { d.SerialNumber = s }},
}

// AddDataset appends ds. A did seen for the second time gets index 2 and the
// first occurrence is given index 1; later ones continue the sequence. The
// common model fills in the device identity.
func (d *Device) AddDataset(ds *Dataset) {
	if ds.Did != nil {
		var same []*Dataset
		for _, prev := range d.Datasets {
			if prev.Did != nil && prev.Did.Did == ds.Did.Did {
				same = append(same, prev)
			}
		}
		if len(same) > 0 {
			if same[0].Index == 0 {
				same[0].Index = 1
			}
			ds.Index = len(same) + 1
		}
		if ds.Did.Did == CommonModelDid && d.Manufacturer == "" {
			d.setIdentity(ds)
		}
	}
	d.Datasets = append(d.Datasets, ds)
}

func (d *Device) setIdentity(ds *Dataset) {
	for _, p := range identityPoints {
		for _, name := range p.names {
			if v, ok := ds.Value(name); ok {
				if s, ok := v.Text(); ok {
					p.set(d, strings.TrimSpace(s))
				}
				break
			}
		}
	}
}

// Dataset returns the first dataset with the given did.
func (d *Device) Dataset(did uint16) (*Dataset, bool) {
	for _, ds := range d.Datasets {
		if ds.Did != nil && ds.Did.Did == did {
			return ds, true
		}
	}
	return nil, false
}

// Id returns a stable identifier built from manufacturer and serial number.
func (d *Device) Id() string {
	id := strings.ToLower(strings.Join([]string{d.Manufacturer, d.SerialNumber}, "_"))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, id)
}
