// Package chisp implements the client side of the WCH CH55x factory
// bootloader protocol: version detection, chip identification, the V2 bootkey
// exchange and the erase/write/verify/exit command sequencing. It drives an
// injected Transport and never opens hardware itself.
package chisp

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"

	"github.com/samber/lo"

	"github.com/hexefx/chflash/pkg/transcript"
)

// Transport is the byte-exchange capability the session consumes. Command
// sends one framed command and, if replyLen is nonzero, blocks until the
// device's reply has been read. A replyLen of zero means fire-and-forget.
//
// The protocol is strictly half-duplex; a session owns its transport for its
// whole lifetime and implementations need not be safe for concurrent use.
type Transport interface {
	Command(cmd []byte, replyLen int) ([]byte, error)
	Close() error
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateDetected
	stateReady
	stateFailed
)

// Session holds the per-invocation bootloader state: the detected protocol
// variant, the identified chip and, for V2, the derived bootkey. A session is
// populated by Detect and Identify, consumed by the flash operations and then
// discarded; no state survives across invocations.
type Session struct {
	tr       Transport
	log      *slog.Logger
	tlog     *transcript.Writer
	progress func(done, total int)
	rand     io.Reader

	state       sessionState
	variant     ProtocolVariant
	chipID      byte
	chip        ChipDescriptor
	bootkey     [8]byte
	version     string
	detectReply []byte
}

// Option configures a Session.
type Option func(*Session)

// WithLogger routes session diagnostics to l instead of slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithTranscript records every exchange to t. An enabled transcript also
// changes verify semantics: mismatches are recorded and the pass continues
// through the whole image instead of stopping at the first failing address.
func WithTranscript(t *transcript.Writer) Option {
	return func(s *Session) { s.tlog = t }
}

// WithProgress installs a callback invoked after every write/verify packet.
func WithProgress(fn func(done, total int)) Option {
	return func(s *Session) { s.progress = fn }
}

// WithRand overrides the randomness source for the key-exchange challenge.
func WithRand(r io.Reader) Option {
	return func(s *Session) { s.rand = r }
}

// New creates a session over tr. The session does not close the transport.
func New(tr Transport, opts ...Option) *Session {
	s := &Session{
		tr:   tr,
		log:  slog.Default(),
		rand: rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Variant returns the detected protocol variant, valid after Detect.
func (s *Session) Variant() ProtocolVariant { return s.variant }

// Chip returns the identified chip descriptor, valid after Identify.
func (s *Session) Chip() ChipDescriptor { return s.chip }

// ChipID returns the raw chip id byte, valid after Identify.
func (s *Session) ChipID() byte { return s.chipID }

// BootloaderVersion returns the display version string, valid after Identify.
func (s *Session) BootloaderVersion() string { return s.version }

// fail latches the session; no further commands will be issued.
func (s *Session) fail(err error) error {
	s.state = stateFailed
	s.tlog.Fail(err.Error())
	return err
}

func (s *Session) reportProgress(done, total int) {
	if s.progress != nil {
		s.progress(done, total)
	}
}

// Detect probes the device with the V2 detection sequence and classifies the
// bootloader generation by the reply length alone: no reply means the device
// is silent, a 2-byte echo means a V1 bootloader misread the probe, and the
// full 6-byte reply means V2. The V2 reply also carries the chip id, so it is
// retained for Identify.
func (s *Session) Detect() (ProtocolVariant, error) {
	if s.state == stateFailed {
		return 0, ErrSessionFailed
	}
	reply, err := s.tr.Command(detectSeqV2, replySize)
	s.tlog.Section("Detecting bootloader version")
	s.tlog.Exchange(detectSeqV2, reply)
	if err != nil {
		return 0, s.fail(fmt.Errorf("detect: %w", err))
	}
	switch len(reply) {
	case 0:
		return 0, s.fail(ErrCommFailed)
	case 2:
		s.variant = V1
	default:
		s.variant = V2
		s.detectReply = reply
	}
	s.state = stateDetected
	s.log.Info("bootloader detected", "variant", s.variant.String())
	return s.variant, nil
}

// Identify resolves the chip id into a descriptor, reads the bootloader
// version for display and, on V2, performs the bootkey exchange. It must
// follow a successful Detect.
func (s *Session) Identify() error {
	switch s.state {
	case stateFailed:
		return ErrSessionFailed
	case stateIdle:
		return ErrNotDetected
	}

	var err error
	switch s.variant {
	case V1:
		err = s.identifyV1()
	case V2:
		err = s.identifyV2()
	}
	if err != nil {
		return err
	}
	s.state = stateReady
	s.log.Info("chip identified",
		"chip", s.chip.Symbol,
		"id", fmt.Sprintf("0x%02X", s.chipID),
		"bootloader", s.version,
		"flashBlocks", s.chip.FlashBlocks,
		"eraseBlocks", s.chip.EraseBlocks,
	)
	return nil
}

func (s *Session) identifyV1() error {
	reply, err := s.tr.Command(detectSeqV1, 2)
	s.tlog.Section("Chip identification")
	s.tlog.Exchange(detectSeqV1, reply)
	if err != nil {
		return s.fail(fmt.Errorf("identify: %w", err))
	}
	if len(reply) != 2 {
		return s.fail(fmt.Errorf("%w: identification reply was %d bytes", ErrUnknownBootloader, len(reply)))
	}
	s.chipID = reply[0]
	if s.chip, err = LookupChip(s.chipID); err != nil {
		return s.fail(err)
	}

	ver, err := s.tr.Command(versionProbeV1, 2)
	s.tlog.Section("Bootloader version")
	s.tlog.Exchange(versionProbeV1, ver)
	if err != nil {
		return s.fail(fmt.Errorf("identify: %w", err))
	}
	if len(ver) != 2 {
		return s.fail(fmt.Errorf("%w: version reply was %d bytes", ErrUnknownBootloader, len(ver)))
	}
	s.version = fmt.Sprintf("%d.%d", ver[0]>>4, ver[0]&0x0F)
	return nil
}

func (s *Session) identifyV2() error {
	// Chip id rides in the detection reply itself; no re-probe needed.
	if len(s.detectReply) < 5 {
		return s.fail(fmt.Errorf("%w: detection reply was %d bytes", ErrUnknownBootloader, len(s.detectReply)))
	}
	s.chipID = s.detectReply[4]
	var err error
	if s.chip, err = LookupChip(s.chipID); err != nil {
		return s.fail(err)
	}

	cfg, err := s.readConfig()
	if err != nil {
		return err
	}
	s.version = fmt.Sprintf("%d.%d.%d", cfg[19], cfg[20], cfg[21])

	// The reply doubles as key material: bytes 0x16..0x19 summed mod 256
	// feed the bootkey derivation.
	cfgSum := cfg[0x16] + cfg[0x17] + cfg[0x18] + cfg[0x19]
	if err := s.keyExchange(cfgSum); err != nil {
		return err
	}

	// The vendor tool reads the configuration once more after the key
	// exchange; some bootloader builds expect that traffic shape.
	if _, err := s.readConfig(); err != nil {
		return err
	}
	return nil
}

func (s *Session) readConfig() ([]byte, error) {
	reply, err := s.tr.Command(readConfigV2, cfgReplyLen)
	s.tlog.Section("Config read")
	s.tlog.Exchange(readConfigV2, reply)
	if err != nil {
		return nil, s.fail(fmt.Errorf("read config: %w", err))
	}
	if len(reply) != cfgReplyLen {
		return nil, s.fail(fmt.Errorf("%w: config reply was %d bytes", ErrUnknownBootloader, len(reply)))
	}
	return reply, nil
}

// keyExchange sends a random 0x30-byte challenge, derives the session bootkey
// from it and checks the checksum the bootloader echoes back. A mismatch is a
// warning, not an error: devices in the field accept the subsequent writes
// regardless, so aborting here would brick perfectly flashable chips.
func (s *Session) keyExchange(cfgSum byte) error {
	seed := make([]byte, 3+int(keyChallengeLen))
	seed[0] = cmdKeyInputV2
	seed[1] = keyChallengeLen
	if _, err := io.ReadFull(s.rand, seed[3:]); err != nil {
		return s.fail(fmt.Errorf("key exchange: %w", err))
	}
	key, want, err := DeriveBootkey(seed, cfgSum, s.chipID)
	if err != nil {
		return s.fail(err)
	}

	reply, err := s.tr.Command(seed, replySize)
	s.tlog.Section("Key input")
	s.tlog.KeyInput(cfgSum, s.chipID, key)
	s.tlog.Exchange(seed, reply)
	if err != nil {
		return s.fail(fmt.Errorf("key exchange: %w", err))
	}
	if len(reply) < 5 {
		return s.fail(fmt.Errorf("%w: key-input reply was %d bytes", ErrUnknownBootloader, len(reply)))
	}
	if reply[4] != want {
		s.log.Warn("bootkey checksum mismatch, continuing anyway",
			"calculated", fmt.Sprintf("0x%02X", want),
			"received", fmt.Sprintf("0x%02X", reply[4]),
		)
		s.tlog.Note(fmt.Sprintf("KEY sum differs: calc 0x%02X, received 0x%02X", want, reply[4]))
	}
	s.bootkey = key
	return nil
}

// Erase wipes the application flash. V1 issues a global erase followed by one
// command per erase block; V2 erases everything with a single parameterized
// command. Erase is all or nothing: no partial-erase recovery is attempted.
func (s *Session) Erase() error {
	if err := s.requireReady(); err != nil {
		return err
	}
	switch s.variant {
	case V1:
		// The global erase reply carries no meaningful status.
		if _, err := s.tr.Command(eraseFlashV1, replySize); err != nil {
			return s.fail(fmt.Errorf("erase: %w", err))
		}
		for i := uint32(0); i < s.chip.EraseBlocks; i++ {
			cmd := []byte{cmdBlockEraseV1, 0x02, 0x00, byte(i * 4)}
			reply, err := s.tr.Command(cmd, replySize)
			if err != nil {
				return s.fail(fmt.Errorf("erase: %w", err))
			}
			st, ok := replyStatus(V1, reply)
			if !ok || st != StatusOK {
				return s.fail(fmt.Errorf("%w: block %d (status 0x%02X)", ErrEraseFailed, i, st))
			}
		}
	case V2:
		cmd := []byte{cmdEraseV2, 0x01, 0x00, byte(s.chip.EraseBlocks)}
		reply, err := s.tr.Command(cmd, replySize)
		s.tlog.Section("Erasing flash")
		s.tlog.Exchange(cmd, reply)
		if err != nil {
			return s.fail(fmt.Errorf("erase: %w", err))
		}
		st, ok := replyStatus(V2, reply)
		if !ok || st != StatusOK {
			return s.fail(fmt.Errorf("%w: status 0x%02X", ErrEraseFailed, st))
		}
	}
	s.log.Info("flash erased")
	return nil
}

// Write programs fw into flash starting at address 0.
func (s *Session) Write(fw []byte) error {
	return s.transfer(fw, false)
}

// Verify compares flash contents against fw. Without a transcript the first
// mismatch is fatal; with one, every failing address is recorded and the pass
// runs to the end of the image.
func (s *Session) Verify(fw []byte) error {
	return s.transfer(fw, true)
}

func (s *Session) transfer(fw []byte, verify bool) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	op := "write"
	if verify {
		op = "verify"
	}

	chunkSize := ChunkSizeV1
	mode := modeWriteV1
	if s.variant == V2 {
		chunkSize = ChunkSizeV2
		mode = modeWriteV2
		if verify {
			mode = modeVerifyV2
		}
		if len(fw) < MinImageSizeV2 {
			return s.fail(ErrFirmwareTooShort)
		}
	} else if verify {
		mode = modeVerifyV1
	}

	title := "Writing"
	if verify {
		title = "Verifying"
	}
	s.tlog.TransferHeader(title, len(fw))
	s.log.Info(op+" flash", "size", len(fw), "chip", s.chip.Symbol)

	var (
		addr       int
		mismatches int
		remaining  = len(fw)
	)
	for _, chunk := range lo.Chunk(fw, chunkSize) {
		var pkt []byte
		if s.variant == V1 {
			pkt = buildPacketV1(mode, uint16(addr), chunk)
		} else {
			pkt = buildPacketV2(mode, uint16(addr), remaining, chunk, s.bootkey)
		}
		reply, err := s.tr.Command(pkt, replySize)
		if err != nil {
			return s.fail(fmt.Errorf("%s: %w", op, err))
		}
		st, ok := replyStatus(s.variant, reply)
		if !ok {
			return s.fail(fmt.Errorf("%s: %w", op, ErrCommFailed))
		}
		s.tlog.Packet(chunk, pkt, reply, uint16(addr), st)

		bad := st != StatusOK
		if s.variant == V2 && st == StatusSkip {
			// Benign "already in target state" status; not a failure.
			bad = false
		}
		if bad {
			serr := &StatusError{Op: op, Addr: uint16(addr), Status: st}
			// Only V2 verify gets the continue-on-mismatch leniency; V1
			// bootloaders abort on the first nonzero status, transcript
			// or not.
			if verify && s.variant == V2 && s.tlog.Enabled() {
				// Keep going so the transcript captures every failing
				// address in a single pass.
				mismatches++
				s.log.Warn("verify mismatch", "addr", fmt.Sprintf("0x%04X", addr), "status", st)
			} else {
				return s.fail(serr)
			}
		}

		// V2 advances by the padded span actually sent on the wire.
		sent := len(chunk)
		if s.variant == V2 {
			sent = len(pkt) - 8
		}
		addr += sent
		remaining -= len(chunk)
		s.reportProgress(len(fw)-remaining, len(fw))
	}

	if mismatches > 0 {
		s.log.Warn("verify finished with mismatches", "count", mismatches)
		return nil
	}
	s.log.Info(op + " succeeded")
	return nil
}

// WriteConfig rewrites the V2 configuration bytes to their stock values. It
// is not part of the standard flash flow; the vendor tool issues it to clear
// a misconfigured chip. The bootloader's status for this command is not
// meaningful and is ignored.
func (s *Session) WriteConfig() error {
	if s.state == stateFailed {
		return ErrSessionFailed
	}
	if s.state == stateIdle {
		return ErrNotDetected
	}
	if s.variant != V2 {
		return fmt.Errorf("chisp: write config is a %s operation, session is %s", V2, s.variant)
	}
	reply, err := s.tr.Command(writeConfigV2, replySize)
	s.tlog.Section("Write config data")
	s.tlog.Exchange(writeConfigV2, reply)
	if err != nil {
		return s.fail(fmt.Errorf("write config: %w", err))
	}
	return nil
}

// StartApp sends the exit-bootloader sequence. No reply is expected: the chip
// resets straight into the application and stops answering bootloader
// commands, so this is fire-and-forget.
func (s *Session) StartApp() error {
	if s.state == stateFailed {
		return ErrSessionFailed
	}
	if s.state == stateIdle {
		return ErrNotDetected
	}
	cmd := exitBootloaderV1
	if s.variant == V2 {
		cmd = exitBootloaderV2
	}
	if _, err := s.tr.Command(cmd, 0); err != nil {
		return s.fail(fmt.Errorf("start app: %w", err))
	}
	s.tlog.Section("Starting application")
	s.tlog.Exchange(cmd, nil)
	s.log.Info("application started")
	return nil
}

func (s *Session) requireReady() error {
	switch s.state {
	case stateFailed:
		return ErrSessionFailed
	case stateReady:
		return nil
	default:
		return ErrNotDetected
	}
}
