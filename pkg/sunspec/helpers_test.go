package sunspec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func regs(values ...uint16) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(buf[2*i:], v)
	}
	return buf
}

func point(name string, spec TypeSpec) DataPoint {
	return DataPoint{Name: name, Offset: OffsetUnset, Spec: spec}
}

// newTestTable resolves the given models and registers each under did.
func newTestTable(t *testing.T, models map[uint16]*Model) *DidTable {
	t.Helper()
	table := NewDidTable()
	for did, m := range models {
		require.NoError(t, ResolveOffsets(m, nil))
		m.AddDid(did, m.Name)
		require.NoError(t, table.Add(m, false))
	}
	return table
}

// inverterModel mimics a small integer plus scale factor model: a fixed
// block ending with a pad.
func inverterModel() *Model {
	return &Model{
		Name: "inverter",
		Blocks: []DataPointBlock{{
			Points: []DataPoint{
				point("A", RefSpec(TypeUInt16, "A_SF")),
				point("A_SF", Spec(TypeScaleFactor)),
				point("W", RefSpec(TypeInt16, "W_SF")),
				point("W_SF", Spec(TypeScaleFactor)),
				point("WH", RefSpec(TypeAcc32, "WH_SF")),
				point("WH_SF", Spec(TypeScaleFactor)),
				point("St", RefSpec(TypeEnum16, "St")),
				point("Pad", Spec(TypePad)),
			},
		}},
		Defines: []Define{{
			Name: "St",
			Symbols: []Symbol{
				{Name: "OFF", Value: 1},
				{Name: "MPPT", Value: 4},
			},
		}},
	}
}

// mpptModel has a fixed block with shared scale factors and a repeating
// module block.
func mpptModel() *Model {
	return &Model{
		Name: "mppt",
		Blocks: []DataPointBlock{
			{Points: []DataPoint{
				point("DCW_SF", Spec(TypeScaleFactor)),
				point("N", Spec(TypeUInt16)),
			}},
			{Repeating: true, Points: []DataPoint{
				point("ID", Spec(TypeUInt16)),
				point("IDStr", StringSpec(4)),
				point("DCW", RefSpec(TypeUInt16, "DCW_SF")),
			}},
		},
	}
}
