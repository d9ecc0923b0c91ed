package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

const (
	serialBaud        = 57600
	serialReadTimeout = 150 * time.Millisecond
)

var _ Transport = (*Serial)(nil)

// Serial is the UART binding of the bootloader link. Commands and replies are
// wrapped in the checksummed frame format from frame.go.
type Serial struct {
	port serial.Port
	name string
}

// OpenSerial opens the named port at the bootloader's fixed baud rate and
// pulses DTR low-high-low to kick the chip into its bootloader. The short
// read timeout doubles as the only liveness check: a silent device surfaces
// as ErrNoResponse from Command, never as a hang.
func OpenSerial(name string) (*Serial, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: serialBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: %s: %w", name, err)
	}

	// DTR is wired to the chip's bootloader-entry circuit on most dev
	// boards; the pulse resets it into the bootloader.
	time.Sleep(10 * time.Millisecond)
	if err := port.SetDTR(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: %s: %w", name, err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := port.SetDTR(false); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: %s: %w", name, err)
	}
	time.Sleep(100 * time.Millisecond)

	return &Serial{port: port, name: name}, nil
}

// Name returns the port name the transport was opened on.
func (s *Serial) Name() string { return s.name }

// Command writes one framed command and reads back up to replyLen payload
// bytes plus framing. Replies shorter than requested are returned as-is once
// the line goes idle; that short read is how V1 bootloaders are detected.
func (s *Serial) Command(cmd []byte, replyLen int) ([]byte, error) {
	if _, err := s.port.Write(EncodeFrame(cmd)); err != nil {
		return nil, fmt.Errorf("transport: write %s: %w", s.name, err)
	}
	if replyLen == 0 {
		return nil, nil
	}

	frame := make([]byte, 0, replyLen+3)
	buf := make([]byte, replyLen+3)
	for len(frame) < replyLen+3 {
		n, err := s.port.Read(buf[:replyLen+3-len(frame)])
		if err != nil {
			return nil, fmt.Errorf("transport: read %s: %w", s.name, err)
		}
		if n == 0 { // read timeout, line is idle
			break
		}
		frame = append(frame, buf[:n]...)
	}
	if len(frame) == 0 {
		return nil, ErrNoResponse
	}
	return DecodeFrame(frame)
}

// Close releases the port.
func (s *Serial) Close() error {
	return s.port.Close()
}
