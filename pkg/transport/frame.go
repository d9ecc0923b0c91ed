package transport

// Serial framing: commands travel as [0x57 0xAB | command | checksum] and
// replies as [0x55 0xAA | payload | checksum], where the checksum is the sum
// of the enclosed bytes mod 256. The USB binding sends commands bare.

const (
	preambleOut0 = 0x57
	preambleOut1 = 0xAB
	preambleIn0  = 0x55
	preambleIn1  = 0xAA
)

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// EncodeFrame wraps a command for the UART link.
func EncodeFrame(cmd []byte) []byte {
	frame := make([]byte, 0, len(cmd)+3)
	frame = append(frame, preambleOut0, preambleOut1)
	frame = append(frame, cmd...)
	return append(frame, checksum(cmd))
}

// DecodeFrame strips the preamble and checksum from a reply frame and returns
// the payload. Single-byte corruption anywhere in the frame is caught either
// by the preamble check or the checksum.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < 3 || frame[0] != preambleIn0 || frame[1] != preambleIn1 {
		return nil, ErrBadFrame
	}
	payload := frame[2 : len(frame)-1]
	if checksum(payload) != frame[len(frame)-1] {
		return nil, ErrChecksum
	}
	return payload, nil
}
