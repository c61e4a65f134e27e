package sunspec_modbus

import (
	"fmt"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
)

// NewDeviceImage lays out a SunSpec device starting at register base: the
// signature, each dataset encoded as a model block, then the end marker.
func NewDeviceImage(base uint32, datasets ...*sunspec.Dataset) (*RegisterMap, error) {
	m := NewRegisterMap()
	m.Set(base, SignatureHi, SignatureLo)

	addr := base + 2
	for _, ds := range datasets {
		block, err := sunspec.EncodeDataset(ds)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", ds.Key(), err)
		}
		m.SetBytes(addr, block)
		addr += uint32(len(block) / 2)
	}
	m.Set(addr, EndMarkerDid, 0)
	return m, nil
}
