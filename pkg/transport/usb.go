package transport

import (
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// The bootloader ROM enumerates with fixed identifiers.
const (
	bootVID = gousb.ID(0x4348)
	bootPID = gousb.ID(0x55E0)

	usbPacketSize = 64
)

var _ Transport = (*USB)(nil)

// USB is the bulk-endpoint binding of the bootloader link. Commands go out
// bare; replies are read as single 64-byte bulk transfers and trimmed to the
// actual transfer length.
type USB struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
}

// OpenUSB finds the bootloader device, detaches any kernel driver and claims
// its single vendor interface with one bulk endpoint per direction.
func OpenUSB() (*USB, error) {
	ctx := gousb.NewContext()
	u := &USB{ctx: ctx}

	dev, err := ctx.OpenDeviceWithVIDPID(bootVID, bootPID)
	if err != nil {
		ctx.Close()
		if errors.Is(err, gousb.ErrorAccess) {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("transport: open usb device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, ErrDeviceNotFound
	}
	u.dev = dev

	if err := dev.SetAutoDetach(true); err != nil {
		u.Close()
		return nil, fmt.Errorf("transport: detach kernel driver: %w", err)
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		u.Close()
		if errors.Is(err, gousb.ErrorAccess) {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("transport: claim interface: %w", err)
	}
	u.done = done

	var inNum, outNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			inNum = ep.Number
		} else {
			outNum = ep.Number
		}
	}
	if inNum == 0 || outNum == 0 {
		u.Close()
		return nil, errors.New("transport: bootloader interface lacks bulk endpoints")
	}
	if u.in, err = intf.InEndpoint(inNum); err != nil {
		u.Close()
		return nil, fmt.Errorf("transport: in endpoint: %w", err)
	}
	if u.out, err = intf.OutEndpoint(outNum); err != nil {
		u.Close()
		return nil, fmt.Errorf("transport: out endpoint: %w", err)
	}
	return u, nil
}

// Command writes cmd to the out endpoint and, if a reply is expected, reads
// one bulk transfer. The device answers with however many bytes the command
// produces; callers interpret short replies.
func (u *USB) Command(cmd []byte, replyLen int) ([]byte, error) {
	if _, err := u.out.Write(cmd); err != nil {
		return nil, fmt.Errorf("transport: usb write: %w", err)
	}
	if replyLen == 0 {
		return nil, nil
	}
	buf := make([]byte, usbPacketSize)
	n, err := u.in.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("transport: usb read: %w", err)
	}
	return buf[:n], nil
}

// Close releases the interface, device and context. Safe to call on a
// partially opened transport.
func (u *USB) Close() error {
	if u.done != nil {
		u.done()
		u.done = nil
	}
	if u.dev != nil {
		u.dev.Close()
		u.dev = nil
	}
	if u.ctx != nil {
		u.ctx.Close()
		u.ctx = nil
	}
	return nil
}
