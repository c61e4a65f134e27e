package sunspec_modbus

import (
	"testing"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/stretchr/testify/require"
)

func point(name string, spec sunspec.TypeSpec) sunspec.DataPoint {
	return sunspec.DataPoint{Name: name, Offset: sunspec.OffsetUnset, Spec: spec}
}

// testTable binds a four register common model to did 1 and a small
// inverter model to did 101.
func testTable(t *testing.T) *sunspec.DidTable {
	t.Helper()
	common := &sunspec.Model{
		Name: "common",
		Blocks: []sunspec.DataPointBlock{{Points: []sunspec.DataPoint{
			point("Mn", sunspec.StringSpec(4)),
			point("SN", sunspec.StringSpec(4)),
		}}},
	}
	inverter := &sunspec.Model{
		Name: "inverter",
		Blocks: []sunspec.DataPointBlock{{Points: []sunspec.DataPoint{
			point("W", sunspec.RefSpec(sunspec.TypeInt16, "W_SF")),
			point("W_SF", sunspec.Spec(sunspec.TypeScaleFactor)),
			point("WH", sunspec.Spec(sunspec.TypeAcc32)),
		}}},
	}

	table := sunspec.NewDidTable()
	for did, m := range map[uint16]*sunspec.Model{1: common, 101: inverter} {
		require.NoError(t, sunspec.ResolveOffsets(m, nil))
		m.AddDid(did, m.Name)
		require.NoError(t, table.Add(m, false))
	}
	return table
}

// testImage writes a common block, an inverter block and the end marker at
// base.
func testImage(base uint32) *RegisterMap {
	m := NewRegisterMap()
	m.Set(base, SignatureHi, SignatureLo)
	// "ACME" "0042"
	m.Set(base+2, 1, 4, 0x4143, 0x4d45, 0x3030, 0x3432)
	// W=1500 W_SF=-1 WH=70000
	m.Set(base+8, 101, 4, 1500, 0xffff, 0x0001, 0x1170)
	m.Set(base+14, EndMarkerDid, 0)
	return m
}

func testReaderConfig() ReaderConfig {
	return ReaderConfig{
		SignatureAddresses:  []uint32{1, 40001, 50001, 0x40001},
		Retries:             2,
		MaxRegistersPerRead: 125,
	}
}
