package chisp

// buildPacketV1 frames one V1 write or verify command. The bootloader always
// consumes full 64-byte packets; unused trailing bytes stay zero.
//
// Layout: [mode, len, addrLo, addrHi, payload...].
func buildPacketV1(mode byte, addr uint16, payload []byte) []byte {
	buf := make([]byte, packetSize)
	buf[0] = mode
	buf[1] = byte(len(payload))
	buf[2] = byte(addr)
	buf[3] = byte(addr >> 8)
	copy(buf[4:], payload)
	return buf
}

// buildPacketV2 frames one V2 write or verify command and applies the bootkey
// obfuscation.
//
// Layout: [mode, paddedLen+5, 0, addrLo, addrHi, 0, 0, remainingLo,
// payload...]. The payload span is padded up to the next multiple of 8; the
// padding bytes (zeros) take part in the XOR and go out on the wire, but the
// declared remaining count stays the true un-padded byte count.
func buildPacketV2(mode byte, addr uint16, remaining int, payload []byte, key [8]byte) []byte {
	buf := make([]byte, packetSize)
	buf[0] = mode
	buf[3] = byte(addr)
	buf[4] = byte(addr >> 8)
	buf[7] = byte(remaining)
	copy(buf[8:], payload)

	padded := len(payload)
	for padded%8 != 0 {
		padded++
	}
	buf[1] = byte(padded + 5)
	for x := 0; x < padded; x++ {
		buf[8+x] ^= key[x&0x07]
	}
	return buf[:padded+8]
}

// replyStatus extracts the status byte of a write/verify/erase reply for the
// given variant. Replies too short to carry one count as a failed exchange.
func replyStatus(variant ProtocolVariant, reply []byte) (byte, bool) {
	switch variant {
	case V1:
		if len(reply) < 1 {
			return 0, false
		}
		return reply[0], true
	case V2:
		if len(reply) < 5 {
			return 0, false
		}
		return reply[4], true
	}
	return 0, false
}
