package chisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keySeed(challenge []byte) []byte {
	seed := []byte{cmdKeyInputV2, keyChallengeLen, 0x00}
	return append(seed, challenge...)
}

func TestDeriveBootkeyZeroChallenge(t *testing.T) {
	seed := keySeed(make([]byte, 0x30))

	key, expected, err := DeriveBootkey(seed, 0xAA, 0x52)
	require.NoError(t, err)

	// Every derived byte is 0x00^0xAA except the chip-id byte.
	assert.Equal(t, [8]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xFC}, key)
	assert.Equal(t, byte(0xA2), expected)
}

func TestDeriveBootkeyIndexPattern(t *testing.T) {
	// challenge[n] = n makes the selected indices directly visible in the key.
	challenge := make([]byte, 0x30)
	for i := range challenge {
		challenge[i] = byte(i)
	}

	key, expected, err := DeriveBootkey(keySeed(challenge), 0x00, 0x10)
	require.NoError(t, err)

	// 0x30/7 = 6 selects challenge offsets 24,6,36,18,30; 0x30/5 = 9
	// selects 9 and 27.
	assert.Equal(t, [8]byte{24, 9, 6, 36, 18, 27, 30, 0x10 + 24}, key)
	assert.Equal(t, byte(24+9+6+36+18+27+30+40), expected)
}

func TestDeriveBootkeyDeterministic(t *testing.T) {
	challenge := make([]byte, 0x30)
	for i := range challenge {
		challenge[i] = byte(i * 37)
	}
	seed := keySeed(challenge)

	k1, e1, err := DeriveBootkey(seed, 0x5A, 0x59)
	require.NoError(t, err)
	k2, e2, err := DeriveBootkey(seed, 0x5A, 0x59)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Equal(t, e1, e2)

	// The expected reply checksum is always the byte sum of the key.
	var sum byte
	for _, b := range k1 {
		sum += b
	}
	assert.Equal(t, sum, e1)
}

func TestDeriveBootkeyRejectsShortSeed(t *testing.T) {
	_, _, err := DeriveBootkey([]byte{cmdKeyInputV2, 0x10, 0x00}, 0x00, 0x52)
	assert.ErrorIs(t, err, ErrBadSeed)

	// Declared length fine but buffer truncated.
	_, _, err = DeriveBootkey(keySeed(make([]byte, 0x20)), 0x00, 0x52)
	assert.ErrorIs(t, err, ErrBadSeed)
}
