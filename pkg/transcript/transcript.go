// Package transcript renders the optional per-operation log of bootloader
// traffic: section blocks for detection, identification and key input, and a
// per-packet table of address, status and raw tx/rx bytes during write and
// verify. A nil *Writer is valid and discards everything, so callers log
// unconditionally.
package transcript

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

const separator = "---------------------------------------------------------------------------------"

// Writer emits transcript blocks to an underlying stream. It performs no
// buffering or synchronization of its own; a session is single-threaded by
// contract.
type Writer struct {
	w io.Writer
}

// New wraps w and writes the transcript header: a timestamp and a run id so
// transcripts from repeated invocations can be told apart.
func New(w io.Writer) *Writer {
	t := &Writer{w: w}
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "%s  run %s\n", time.Now().Format(time.RFC1123), uuid.NewString())
	fmt.Fprintln(w, separator)
	return t
}

func (t *Writer) active() bool {
	return t != nil && t.w != nil
}

// Enabled reports whether the transcript actually records anything. The
// session uses this to decide whether verify mismatches are fatal.
func (t *Writer) Enabled() bool {
	return t.active()
}

// Section starts a new titled block.
func (t *Writer) Section(title string) {
	if !t.active() {
		return
	}
	fmt.Fprintln(t.w, separator)
	fmt.Fprintln(t.w, title+":")
}

// Note records a free-form line, e.g. a non-fatal warning.
func (t *Writer) Note(msg string) {
	if !t.active() {
		return
	}
	fmt.Fprintln(t.w, msg)
}

// Fail records a fatal error before the transcript is closed.
func (t *Writer) Fail(msg string) {
	if !t.active() {
		return
	}
	fmt.Fprintln(t.w, separator)
	fmt.Fprintln(t.w, msg)
}

// Exchange records one command/reply pair under the current section, with an
// index ruler sized to the longer of the two buffers.
func (t *Writer) Exchange(tx, rx []byte) {
	if !t.active() {
		return
	}
	n := len(tx)
	if len(rx) > n {
		n = len(rx)
	}
	fmt.Fprintln(t.w, "add= "+ruler(n))
	if len(tx) > 0 {
		fmt.Fprintln(t.w, "tx = "+hexBytes(tx))
	}
	if len(rx) > 0 {
		fmt.Fprintln(t.w, "rx = "+hexBytes(rx))
	} else {
		fmt.Fprintln(t.w, "rx = (none)")
	}
}

// TransferHeader opens the write/verify packet table.
func (t *Writer) TransferHeader(title string, size int) {
	if !t.active() {
		return
	}
	fmt.Fprintln(t.w, separator)
	fmt.Fprintf(t.w, "%s %d bytes of flash.\n", title, size)
	fmt.Fprintln(t.w, "add="+strings.Repeat(" ", 24)+ruler(64))
}

// Packet records one write/verify exchange: the raw firmware chunk, then an
// address-prefixed row with the decoded status and both wire buffers.
func (t *Writer) Packet(chunk, tx, rx []byte, addr uint16, status byte) {
	if !t.active() {
		return
	}
	msg := "ERR"
	switch status {
	case 0x00:
		msg = "OK "
	case 0xFE:
		msg = "BUG"
	}
	fmt.Fprintln(t.w, "bin data"+strings.Repeat(" ", 44)+hexBytes(chunk))
	fmt.Fprintf(t.w, "0x%04X:%s%s %s\n", addr, msg, hexBytes(rx), hexBytes(tx))
}

// KeyInput records the inputs and output of the bootkey derivation.
func (t *Writer) KeyInput(cfgSum, chipID byte, key [8]byte) {
	if !t.active() {
		return
	}
	fmt.Fprintf(t.w, "Checksum: 0x%02X\n", cfgSum)
	fmt.Fprintf(t.w, "ChipID  = 0x%02X\n", chipID)
	fmt.Fprintln(t.w, "Bootkey = "+hexBytes(key[:]))
}

func ruler(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%02x", i)
	}
	return strings.Join(parts, "|")
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02x", x)
	}
	return strings.Join(parts, ":")
}
