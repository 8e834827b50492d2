package bms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMaskBitPositions(t *testing.T) {
	p, err := NewPack(1)
	require.NoError(t, err)

	assert.Equal(t, uint8(0b0000), p.EncodeMask(Lower, [CellsPerGroup]bool{}))
	assert.Equal(t, uint8(0b0001), p.EncodeMask(Lower, [CellsPerGroup]bool{true, false, false, false}))
	assert.Equal(t, uint8(0b1101), p.EncodeMask(Lower, [CellsPerGroup]bool{true, false, true, true}))
	assert.Equal(t, uint8(0b1111), p.EncodeMask(Upper, [CellsPerGroup]bool{true, true, true, true}))
}

func TestCombined(t *testing.T) {
	assert.Equal(t, uint8(0xA4), Combined(0x4, 0xA))
	assert.Equal(t, uint8(0x00), Combined(0, 0))
	assert.Equal(t, uint8(0x0F), Combined(0xF, 0))
	assert.Equal(t, uint8(0xF0), Combined(0, 0xF))
	// Only the low nibble of each mask is carried.
	assert.Equal(t, uint8(0xA4), Combined(0x14, 0x1A))
}

func TestBalancingScenario(t *testing.T) {
	// Four cells fed steady readings over a full history window. Cell 2
	// sits 110 counts above the weakest cell and is the only one to
	// discharge at a threshold of 50.
	p, err := NewPack(4)
	require.NoError(t, err)

	raw := [CellsPerGroup]uint16{100, 100, 200, 90}
	for cycle := 0; cycle < 4; cycle++ {
		p.Observe(Lower, raw)
	}

	assert.Equal(t, [CellsPerGroup]uint16{100, 100, 200, 90}, p.Averages(Lower))
	assert.Equal(t, 3, p.Reference(Lower))

	decisions := p.Decisions(Lower, 50)
	assert.Equal(t, [CellsPerGroup]bool{false, false, true, false}, decisions)
	assert.Equal(t, uint8(0b0100), p.EncodeMask(Lower, decisions))
}
