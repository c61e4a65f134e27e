package sunspec

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// OffsetUnset marks a data point whose offset is computed from block order.
const OffsetUnset = -1

type DataPoint struct {
	Name string
	// Offset in registers, 1-based from the first payload register of the
	// model. Values < 1 mean unset.
	Offset      int
	Spec        TypeSpec
	Units       string
	Label       string
	Description string
}

type DataPointBlock struct {
	Points    []DataPoint
	Repeating bool
	Feature   string
	// Len is the block length in registers, filled by ResolveOffsets.
	Len int
}

// ModelDid binds a did value to a model. Several dids may share a model.
type ModelDid struct {
	Did   uint16
	Name  string
	Model *Model
}

func (md *ModelDid) MarshalJSON() ([]byte, error) {
	model := ""
	if md.Model != nil {
		model = md.Model.Name
	}
	return json.Marshal(struct {
		Did   uint16 `json:"did"`
		Name  string `json:"name"`
		Model string `json:"model"`
	}{md.Did, md.Name, model})
}

// Symbol is one enum value or bitfield bit of a Define.
type Symbol struct {
	Name  string
	Value uint32
	Label string
}

// Define is a named enum or bitfield label table.
type Define struct {
	Name    string
	Symbols []Symbol
}

// Enum returns the symbol whose value equals value.
func (d *Define) Enum(value uint32) (Symbol, bool) {
	for _, s := range d.Symbols {
		if s.Value == value {
			return s, true
		}
	}
	return Symbol{}, false
}

// Bits returns the symbols whose bit number is set in value.
func (d *Define) Bits(value uint32) []Symbol {
	var set []Symbol
	for _, s := range d.Symbols {
		if s.Value < 32 && value&(1<<s.Value) != 0 {
			set = append(set, s)
		}
	}
	return set
}

type Model struct {
	Name    string
	Blocks  []DataPointBlock
	Dids    []*ModelDid
	Defines []Define
	// BaseLen is the sum of the non repeating block lengths, Len adds one
	// repetition of the repeating block. Both filled by ResolveOffsets.
	BaseLen int
	Len     int
}

// Point returns the first data point named name.
func (m *Model) Point(name string) (*DataPoint, bool) {
	for bi := range m.Blocks {
		for pi := range m.Blocks[bi].Points {
			if m.Blocks[bi].Points[pi].Name == name {
				return &m.Blocks[bi].Points[pi], true
			}
		}
	}
	return nil, false
}

// LastPoint returns the last data point of the last non empty block.
func (m *Model) LastPoint() (*DataPoint, bool) {
	for bi := len(m.Blocks) - 1; bi >= 0; bi-- {
		points := m.Blocks[bi].Points
		if len(points) > 0 {
			return &points[len(points)-1], true
		}
	}
	return nil, false
}

func (m *Model) Define(name string) (*Define, bool) {
	for i := range m.Defines {
		if m.Defines[i].Name == name {
			return &m.Defines[i], true
		}
	}
	return nil, false
}

// HasRepeating reports whether the model has a repeating block.
func (m *Model) HasRepeating() bool {
	return slices.ContainsFunc(m.Blocks, func(b DataPointBlock) bool { return b.Repeating })
}

// AddDid registers did as an identifier of m and returns the binding.
func (m *Model) AddDid(did uint16, name string) *ModelDid {
	md := &ModelDid{Did: did, Name: name, Model: m}
	m.Dids = append(m.Dids, md)
	return md
}

// DidTable maps did values to model bindings.
type DidTable struct {
	dids map[uint16]*ModelDid
}

func NewDidTable() *DidTable {
	return &DidTable{dids: make(map[uint16]*ModelDid)}
}

// Add registers every did of m. A did already present fails with
// ErrDuplicateDid unless replace is set.
func (t *DidTable) Add(m *Model, replace bool) error {
	for _, md := range m.Dids {
		if prev, ok := t.dids[md.Did]; ok && !replace {
			return fmt.Errorf("%w: %d (%s, %s)", ErrDuplicateDid, md.Did, prev.Model.Name, m.Name)
		}
		t.dids[md.Did] = md
	}
	return nil
}

func (t *DidTable) Lookup(did uint16) (*ModelDid, bool) {
	md, ok := t.dids[did]
	return md, ok
}

func (t *DidTable) Len() int {
	return len(t.dids)
}

// Dids returns the registered dids in ascending order.
func (t *DidTable) Dids() []uint16 {
	dids := make([]uint16, 0, len(t.dids))
	for did := range t.dids {
		dids = append(dids, did)
	}
	slices.Sort(dids)
	return dids
}

func (t *DidTable) String() string {
	var sb strings.Builder
	for i, did := range t.Dids() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d:%s", did, t.dids[did].Name)
	}
	return sb.String()
}
