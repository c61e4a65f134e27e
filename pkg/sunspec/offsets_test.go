package sunspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveImpliedOffset(t *testing.T) {

	assert := assert.New(t)

	m := &Model{
		Name: "simple",
		Blocks: []DataPointBlock{{Points: []DataPoint{
			{Name: "A", Offset: 1, Spec: Spec(TypeUInt16)},
			point("B", Spec(TypeUInt16)),
		}}},
	}
	assert.NoError(ResolveOffsets(m, nil))
	assert.Equal(2, m.Blocks[0].Points[1].Offset)
	assert.Equal(2, m.Len)
	assert.Equal(2, m.BaseLen)
}

func TestResolveLengths(t *testing.T) {

	assert := assert.New(t)

	c := &Collector{}
	m := &Model{
		Name: "mixed",
		Blocks: []DataPointBlock{
			{Points: []DataPoint{
				point("A", Spec(TypeUInt16)),
				point("S", StringSpec(3)),
			}},
			{Repeating: true, Points: []DataPoint{
				point("X", Spec(TypeInt32)),
				point("Y", Spec(TypeUInt16)),
			}},
		},
	}
	assert.NoError(ResolveOffsets(m, c))

	assert.Equal(3, m.Blocks[0].Len)
	assert.Equal(3, m.Blocks[1].Len)
	assert.Equal(3, m.BaseLen)
	assert.Equal(6, m.Len)

	offsets := []int{
		m.Blocks[0].Points[0].Offset,
		m.Blocks[0].Points[1].Offset,
		m.Blocks[1].Points[0].Offset,
		m.Blocks[1].Points[1].Offset,
	}
	assert.Equal([]int{1, 2, 4, 6}, offsets)
	assert.Equal([]WarningKind{WarnOddStringLength}, c.Kinds())
}

func TestResolveExplicitOffsetResync(t *testing.T) {

	assert := assert.New(t)

	m := &Model{
		Name: "gap",
		Blocks: []DataPointBlock{{Points: []DataPoint{
			point("A", Spec(TypeUInt16)),
			{Name: "B", Offset: 5, Spec: Spec(TypeUInt32)},
			point("C", Spec(TypeUInt16)),
		}}},
	}
	assert.NoError(ResolveOffsets(m, nil))
	assert.Equal(7, m.Blocks[0].Points[2].Offset)
	assert.Equal(4, m.Len)
}

func TestResolveIdempotent(t *testing.T) {

	assert := assert.New(t)

	once := mpptModel()
	twice := mpptModel()
	assert.NoError(ResolveOffsets(once, nil))
	assert.NoError(ResolveOffsets(twice, nil))
	assert.NoError(ResolveOffsets(twice, nil))

	assert.Equal(once.Blocks, twice.Blocks)
	assert.Equal(once.BaseLen, twice.BaseLen)
	assert.Equal(once.Len, twice.Len)
	assert.Equal(2, once.BaseLen)
	assert.Equal(6, once.Len)
}

func TestResolveRepeatingNotLast(t *testing.T) {

	assert := assert.New(t)

	c := &Collector{}
	m := &Model{
		Name: "broken",
		Blocks: []DataPointBlock{
			{Repeating: true, Points: []DataPoint{point("R", Spec(TypeUInt16))}},
			{Points: []DataPoint{point("F", Spec(TypeUInt16))}},
		},
	}
	err := ResolveOffsets(m, c)
	assert.ErrorIs(err, ErrRepeatingBlockNotLast)
	assert.Equal([]WarningKind{WarnRepeatingBlockNotLast}, c.Kinds())
	// lengths are still computed
	assert.Equal(1, m.BaseLen)
	assert.Equal(2, m.Len)
	assert.Equal(2, m.Blocks[1].Points[0].Offset)
}

func TestResolveInvalidType(t *testing.T) {

	m := &Model{
		Name:   "bad",
		Blocks: []DataPointBlock{{Points: []DataPoint{point("X", Spec(Type(99)))}}},
	}
	assert.ErrorIs(t, ResolveOffsets(m, nil), ErrInvalidType)
}
