package transport

import "errors"

var (
	// ErrDeviceNotFound means no device with the bootloader's VID/PID is
	// attached (or it is not in bootloader mode).
	ErrDeviceNotFound = errors.New("transport: no CH55x bootloader device found")

	// ErrAccessDenied means the device exists but the OS refused access,
	// typically missing udev rules on Linux.
	ErrAccessDenied = errors.New("transport: no permission to access the device")

	// ErrNoResponse means the serial link stayed silent past the read
	// timeout; the chip is likely not in bootloader mode.
	ErrNoResponse = errors.New("transport: bootloader not responding")

	// ErrChecksum means a serial reply frame arrived with a bad checksum and
	// was discarded.
	ErrChecksum = errors.New("transport: reply frame checksum mismatch")

	// ErrBadFrame means a serial reply did not start with the expected
	// preamble.
	ErrBadFrame = errors.New("transport: malformed reply frame")
)
