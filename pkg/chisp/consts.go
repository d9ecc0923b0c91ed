package chisp

// ProtocolVariant selects one of the two bootloader generations. It is fixed
// once per session by Detect and never changes afterwards.
type ProtocolVariant int

const (
	// V1 is the bootloader shipped as version 1.1. Plain packets, per-block
	// erase, status in reply byte 0.
	V1 ProtocolVariant = iota + 1
	// V2 is the bootloader shipped as version 2.3x. Bootkey-obfuscated
	// payloads, parameterized erase, status in reply byte 4.
	V2
)

func (v ProtocolVariant) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

// Status codes found at the variant-specific status offset of a reply.
const (
	StatusOK byte = 0x00
	// StatusSkip is returned by V2 bootloaders for writes that hit
	// already-erased flash. It is benign and must not abort the transfer.
	StatusSkip byte = 0xFE
)

// Wire geometry.
const (
	packetSize  = 64   // every outbound USB packet fits in one bulk transfer
	ChunkSizeV1 = 0x3C // firmware bytes per V1 packet
	ChunkSizeV2 = 0x38 // firmware bytes per V2 packet, before 8-byte padding
	replySize   = 6    // standard command reply
	cfgReplyLen = 30   // V2 read-config reply

	// MinImageSizeV2 guards against obviously truncated images; the V2
	// bootloader misbehaves on transfers shorter than one padded chunk row.
	MinImageSizeV2 = 32
)

// V1 command set.
var (
	detectSeqV1 = []byte{
		0xA2, 0x13, 0x55, 0x53, 0x42, 0x20, 0x44, 0x42, 0x47, 0x20, 0x43,
		0x48, 0x35, 0x35, 0x39, 0x20, 0x26, 0x20, 0x49, 0x53, 0x50, 0x00,
	}
	exitBootloaderV1 = []byte{0xA5, 0x02, 0x01, 0x00}
	eraseFlashV1     = []byte{0xA6, 0x04, 0x00, 0x00, 0x00, 0x00}
	versionProbeV1   = []byte{0xBB, 0x00}
)

const (
	modeWriteV1  byte = 0xA8
	modeVerifyV1 byte = 0xA7
	// cmdBlockEraseV1 erases one flash block; the block index times four goes
	// into the last byte.
	cmdBlockEraseV1 byte = 0xA9
)

// V2 command set.
var (
	detectSeqV2 = []byte{
		0xA1, 0x12, 0x00, 0x59, 0x11, 0x4D, 0x43, 0x55, 0x20, 0x49, 0x53,
		0x50, 0x20, 0x26, 0x20, 0x57, 0x43, 0x48, 0x2E, 0x43, 0x4E,
	}
	exitBootloaderV2 = []byte{0xA2, 0x01, 0x00, 0x01}
	readConfigV2     = []byte{0xA7, 0x02, 0x00, 0x1F, 0x00}
	writeConfigV2    = []byte{
		0xA8, 0x0E, 0x00, 0x07, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0x03, 0x00,
		0x00, 0x00, 0xFF, 0x4E, 0x00, 0x00,
	}
)

const (
	modeWriteV2   byte = 0xA5
	modeVerifyV2  byte = 0xA6
	cmdKeyInputV2 byte = 0xA3
	cmdEraseV2    byte = 0xA4

	// keyChallengeLen is the declared length of the random challenge in the
	// key-input command; the bootkey formula depends on this exact value.
	keyChallengeLen byte = 0x30
)
