// Package transport provides the two physical bindings of the CH55x
// bootloader link: raw USB bulk endpoints and a checksummed serial framing
// over a UART. The protocol engine only sees the Transport interface and
// never touches hardware directly.
package transport

// Transport exchanges one command with the bootloader. replyLen is the number
// of payload bytes the command is expected to answer with; zero means no
// reply is read at all. The returned buffer may be shorter than replyLen (the
// protocol uses reply length to discriminate bootloader generations), but a
// completely silent device is an error on the serial binding.
type Transport interface {
	Command(cmd []byte, replyLen int) ([]byte, error)
	Close() error
}
