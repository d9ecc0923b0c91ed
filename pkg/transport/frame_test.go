package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	cmd := []byte{0xA7, 0x02, 0x00, 0x1F, 0x00}
	frame := EncodeFrame(cmd)

	require.Len(t, frame, len(cmd)+3)
	assert.Equal(t, byte(0x57), frame[0])
	assert.Equal(t, byte(0xAB), frame[1])
	assert.Equal(t, cmd, frame[2:len(frame)-1])
	assert.Equal(t, byte(0xA7+0x02+0x1F), frame[len(frame)-1])
}

func TestDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x11, 0x22, 0x33, 0x52, 0xFF}
	frame := append([]byte{0x55, 0xAA}, payload...)
	frame = append(frame, checksum(payload))

	got, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecodeFrameDetectsCorruption(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	pristine := append([]byte{0x55, 0xAA}, payload...)
	pristine = append(pristine, checksum(payload))

	// Flipping any single byte must fail preamble or checksum validation.
	for i := range pristine {
		frame := append([]byte(nil), pristine...)
		frame[i] ^= 0x40
		_, err := DecodeFrame(frame)
		assert.Error(t, err, "corrupted byte %d", i)
	}
}

func TestDecodeFrameRejectsRunts(t *testing.T) {
	_, err := DecodeFrame(nil)
	assert.ErrorIs(t, err, ErrBadFrame)
	_, err = DecodeFrame([]byte{0x55, 0xAA})
	assert.ErrorIs(t, err, ErrBadFrame)
	_, err = DecodeFrame([]byte{0x57, 0xAB, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrBadFrame)
}
