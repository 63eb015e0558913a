package channel

import (
	"context"
	"errors"
	"time"
)

// Kind identifies which real transport backs a Channel.
type Kind int

const (
	Telnet Kind = iota
	SSH
	Pipe
)

func (k Kind) String() string {
	switch k {
	case Telnet:
		return "telnet"
	case SSH:
		return "ssh"
	case Pipe:
		return "pipe"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned by every operation on a channel after Close.
	ErrClosed = errors.New("channel closed")

	// ErrTimeout is returned by ReadRaw when fewer than n bytes arrived in time.
	ErrTimeout = errors.New("raw read timed out")
)

// Channel is the duplex byte contract shared by the telnet, SSH and pipe
// backends. Every backend feeds two independent views from one pump:
//
//   - a text view, where each wire byte is one character (an 8-bit 1:1
//     decode, never multi-byte), consumed by Read
//   - a raw view with the untouched bytes, consumed by ReadRaw
//
// Consuming one view never consumes the other.
type Channel interface {
	Kind() Kind

	// Read returns up to n characters of the text view. It blocks until data
	// is available and returns io.EOF or ErrClosed only when the channel has
	// ended and the text view is drained.
	Read(n int) (string, error)

	// ReadRaw returns exactly n bytes of the raw view, or an error. It never
	// returns a short read; on timeout the partial bytes stay queued.
	ReadRaw(n int, timeout time.Duration) ([]byte, error)

	// Buffered reports how many raw bytes are queued right now.
	Buffered() int

	// Write sends already-encoded application bytes.
	Write(p []byte) error

	// WriteRaw sends binary protocol bytes. Telnet doubles IAC here; the
	// other backends pass bytes through untouched.
	WriteRaw(p []byte) error

	// Drain waits for queued output to reach the transport. A no-op for
	// pipe-like backends.
	Drain() error

	// Purge discards everything queued in both views.
	Purge()

	// Close is idempotent and wakes every blocked reader.
	Close() error
	Closed() bool

	RemoteAddr() string
}

// Negotiated is the outcome of a telnet option exchange.
type Negotiated struct {
	BinaryIn     bool // peer agreed to send binary (WILL BINARY)
	BinaryOut    bool // peer agreed we send binary (DO BINARY)
	NAWS         bool
	Echo         bool // peer accepted WILL ECHO
	Cols         int
	Rows         int
	TerminalType string
	TimedOut     bool
	Elapsed      time.Duration
}

// Negotiator is implemented by backends that have an option exchange.
// Negotiate never fails: once the ceiling passes it reports what it has.
type Negotiator interface {
	Negotiate(ctx context.Context, ceiling time.Duration) Negotiated
}
