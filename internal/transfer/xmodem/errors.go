package xmodem

import (
	"errors"
	"fmt"
)

// Kind categorises why a transfer stopped.
type Kind int

const (
	// KindCancelled means the peer sent CAN.
	KindCancelled Kind = iota

	// KindRetriesExceeded means one block (sender) or too many consecutive
	// blocks (receiver) failed validation or timed out.
	KindRetriesExceeded

	// KindNoReceiver means no start byte arrived within the start budget.
	KindNoReceiver

	// KindEOTUnacknowledged means the final EOT was never acknowledged.
	KindEOTUnacknowledged

	// KindTooLarge means an upload passed the configured size limit.
	KindTooLarge

	// KindIO means the port failed or went away.
	KindIO

	// KindContext means the caller's context ended the transfer.
	KindContext
)

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled by peer"
	case KindRetriesExceeded:
		return "too many errors"
	case KindNoReceiver:
		return "receiver never started"
	case KindEOTUnacknowledged:
		return "end of transfer not acknowledged"
	case KindTooLarge:
		return "file too large"
	case KindIO:
		return "I/O error"
	case KindContext:
		return "aborted"
	default:
		return "unknown error"
	}
}

type Error struct {
	Kind  Kind
	Block int // block number being handled, 0 when not applicable
	Err   error
}

func (e *Error) Error() string {
	msg := "xmodem: " + e.Kind.String()
	if e.Block > 0 {
		msg = fmt.Sprintf("%s at block %d", msg, e.Block)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, block int, err error) *Error {
	return &Error{Kind: kind, Block: block, Err: err}
}

// KindOf returns the Kind of err, or false when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsCancelled reports whether the peer cancelled the transfer.
func IsCancelled(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindCancelled
}

func IsRetriesExceeded(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindRetriesExceeded
}
