package chisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupChipSupportedSet(t *testing.T) {
	supported := []byte{0x51, 0x52, 0x53, 0x54, 0x58, 0x59}
	for _, id := range supported {
		desc, err := LookupChip(id)
		require.NoError(t, err, "id 0x%02X", id)
		assert.Equal(t, ChipSymbol(id), desc.Symbol)
		assert.NotZero(t, desc.FlashBlocks)
		assert.NotZero(t, desc.EraseBlocks)
	}

	desc, err := LookupChip(0x52)
	require.NoError(t, err)
	assert.Equal(t, "CH552", desc.Symbol)
	assert.Equal(t, uint32(16), desc.FlashBlocks)
	assert.Equal(t, uint32(14), desc.EraseBlocks)
}

func TestLookupChipRejectsUnknownIDs(t *testing.T) {
	for id := 0; id < 256; id++ {
		switch byte(id) {
		case 0x51, 0x52, 0x53, 0x54, 0x58, 0x59:
			continue
		}
		_, err := LookupChip(byte(id))
		assert.ErrorIs(t, err, ErrUnsupportedChip, "id 0x%02X", id)
	}
}
