package chisp

// DeriveBootkey replicates the V2 bootloader's session key schedule. seed is
// the complete key-input command as sent on the wire: opcode, declared
// challenge length (0x30), a zero byte, then the random challenge itself.
// cfgSum is the sum of config-reply bytes 0x16..0x19 mod 256 and chipID is the
// raw id from detection.
//
// The returned key is the 8-byte XOR mask applied to every subsequent write
// and verify payload. The second return value is the checksum the bootloader
// is expected to echo back in its key-input reply.
//
// The index pattern below was lifted from the vendor flasher and has to match
// bit for bit; do not "simplify" it.
func DeriveBootkey(seed []byte, cfgSum, chipID byte) (key [8]byte, expected byte, err error) {
	if len(seed) < 2 || seed[1] < 30 || len(seed) < 3+int(seed[1]) {
		return key, 0, ErrBadSeed
	}

	i := int(seed[1]) / 7
	key[0] = seed[3+i*4] ^ cfgSum
	key[2] = seed[3+i*1] ^ cfgSum
	key[3] = seed[3+i*6] ^ cfgSum
	key[4] = seed[3+i*3] ^ cfgSum
	key[6] = seed[3+i*5] ^ cfgSum

	j := int(seed[1]) / 5
	key[1] = seed[3+j*1] ^ cfgSum
	key[5] = seed[3+j*3] ^ cfgSum

	key[7] = chipID + key[0]

	for _, b := range key {
		expected += b
	}
	return key, expected, nil
}
