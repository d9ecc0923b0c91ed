package chisp

import (
	"errors"
	"fmt"
)

var (
	// ErrCommFailed means the bootloader returned nothing at all during
	// detection; the device is absent, silent or not in bootloader mode.
	ErrCommFailed = errors.New("chisp: bootloader detection got no reply")

	// ErrUnsupportedChip is returned for chip ids outside the supported set.
	ErrUnsupportedChip = errors.New("chisp: chip not supported")

	// ErrUnknownBootloader means the chip answered detection but its version
	// or configuration replies were malformed.
	ErrUnknownBootloader = errors.New("chisp: unknown bootloader")

	// ErrEraseFailed is returned when the bootloader rejects an erase command.
	ErrEraseFailed = errors.New("chisp: erase failed")

	// ErrNotDetected is returned when an operation requires a completed
	// Detect or Identify that has not happened on this session.
	ErrNotDetected = errors.New("chisp: session not detected/identified")

	// ErrSessionFailed latches after any fatal error; a failed session never
	// issues another command.
	ErrSessionFailed = errors.New("chisp: session is in failed state")

	// ErrFirmwareTooShort rejects images below the V2 minimum transfer size.
	ErrFirmwareTooShort = errors.New("chisp: firmware image too short, possibly corrupt")

	// ErrBadSeed is returned by DeriveBootkey for a malformed key-input
	// buffer.
	ErrBadSeed = errors.New("chisp: key-input buffer too short for derivation")
)

// Base errors carried by StatusError so errors.Is can match write and verify
// failures without digging out the struct.
var (
	ErrWriteFailed  = errors.New("chisp: write failed")
	ErrVerifyFailed = errors.New("chisp: verify failed")
)

// StatusError reports a nonzero bootloader status for one packet.
type StatusError struct {
	Op     string // "write" or "verify"
	Addr   uint16 // flash address of the offending packet
	Status byte   // raw status byte from the reply
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chisp: %s failed at address 0x%04X (status 0x%02X)", e.Op, e.Addr, e.Status)
}

func (e *StatusError) Unwrap() error {
	switch e.Op {
	case "write":
		return ErrWriteFailed
	case "verify":
		return ErrVerifyFailed
	}
	return nil
}
