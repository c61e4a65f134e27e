package sunspec

import "fmt"

// ResolveOffsets fills the implied offsets of every data point and the block
// and model lengths of m. Explicit offsets re-synchronise the running offset
// of their block. Running it again on the same model gives the same result.
//
// A repeating block that is not last yields ErrRepeatingBlockNotLast after the
// pass completes; offsets and lengths are filled in anyway.
func ResolveOffsets(m *Model, diag Diagnostics) error {
	diag = diagnostics(diag)
	m.BaseLen = 0
	m.Len = 0

	var misplaced error
	blockStart := 1
	for bi := range m.Blocks {
		block := &m.Blocks[bi]
		rel := 0
		length := 0
		for pi := range block.Points {
			dp := &block.Points[pi]
			if dp.Offset > 0 {
				rel = dp.Offset - blockStart
			} else {
				dp.Offset = blockStart + rel
			}

			regs, err := dp.Spec.Registers()
			if err != nil {
				return fmt.Errorf("model %s point %s: %w", m.Name, dp.Name, err)
			}
			if dp.Spec.Type == TypeString && dp.Spec.Len%2 != 0 {
				diag.Warn(Warning{Kind: WarnOddStringLength, Model: m.Name, Point: dp.Name, Actual: dp.Spec.Len})
			}
			rel += regs
			length += regs
		}
		block.Len = length

		if block.Repeating {
			if bi != len(m.Blocks)-1 {
				diag.Warn(Warning{Kind: WarnRepeatingBlockNotLast, Model: m.Name})
				misplaced = fmt.Errorf("%w: model %s block %d", ErrRepeatingBlockNotLast, m.Name, bi)
			}
		} else {
			m.BaseLen += length
		}
		m.Len += length
		blockStart += length
	}
	return misplaced
}
