package chisp

import (
	"fmt"
	"strconv"
)

// ChipDescriptor describes the flash geometry of one supported part.
type ChipDescriptor struct {
	// Symbol is the marketing name, e.g. "CH552".
	Symbol string
	// FlashBlocks is the total code flash size in 1 KiB blocks.
	FlashBlocks uint32
	// EraseBlocks is the number of 1 KiB blocks available to the
	// application; it parameterizes the erase commands and bounds the
	// maximum image size.
	EraseBlocks uint32
	// BootAddr is the fixed entry address of the factory bootloader.
	BootAddr uint16
}

// chips is keyed by the chip id byte reported during identification.
var chips = map[byte]ChipDescriptor{
	0x51: {Symbol: "CH551", FlashBlocks: 16, EraseBlocks: 10, BootAddr: 0x3800},
	0x52: {Symbol: "CH552", FlashBlocks: 16, EraseBlocks: 14, BootAddr: 0x3800},
	0x53: {Symbol: "CH553", FlashBlocks: 16, EraseBlocks: 10, BootAddr: 0x3800},
	0x54: {Symbol: "CH554", FlashBlocks: 16, EraseBlocks: 14, BootAddr: 0x3800},
	0x58: {Symbol: "CH558", FlashBlocks: 64, EraseBlocks: 11, BootAddr: 0xF400},
	0x59: {Symbol: "CH559", FlashBlocks: 64, EraseBlocks: 0x1D, BootAddr: 0xF400},
}

// LookupChip resolves a chip id reported by the bootloader. Ids outside the
// supported set are an error, never a default descriptor.
func LookupChip(id byte) (ChipDescriptor, error) {
	desc, ok := chips[id]
	if !ok {
		return ChipDescriptor{}, fmt.Errorf("%w: id 0x%02X (%s)", ErrUnsupportedChip, id, ChipSymbol(id))
	}
	return desc, nil
}

// ChipSymbol formats the marketing name the way the bootloader encodes it:
// "CH5" followed by the chip id minus 30, in decimal.
func ChipSymbol(id byte) string {
	return "CH5" + strconv.Itoa(int(id)-30)
}
