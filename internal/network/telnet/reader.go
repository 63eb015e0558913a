package telnet

import (
	"io"
)

type CommandHandler interface {
	HandleCommand(cmd, option byte)
	HandleSubNegotiation(option byte, data []byte)
}

type parseState int

const (
	stateData parseState = iota
	stateIAC
	stateVerb  // after IAC WILL/WONT/DO/DONT, waiting for the option
	stateSB    // after IAC SB, waiting for the option
	stateSBData
	stateSBIAC // IAC inside sub-negotiation data
)

// maxSubNegotiation bounds the payload kept for one IAC SB ... IAC SE.
const maxSubNegotiation = 1024

// Reader strips telnet commands out of the stream, undoubles escaped IAC
// bytes and hands commands to the CommandHandler. Everything else is data.
// Parser state survives between reads, so a command split across TCP
// segments is still recognised.
type Reader struct {
	r       io.Reader
	handler CommandHandler
	scratch []byte

	state  parseState
	verb   byte
	option byte
	sub    []byte
}

func NewReader(r io.Reader, handler CommandHandler) *Reader {
	return &Reader{
		r:       r,
		handler: handler,
		scratch: make([]byte, 4096),
	}
}

// Read may return 0 bytes with a nil error when a chunk held only commands.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	// Never read more than p can hold: the output is at most the input.
	buf := r.scratch
	if len(buf) > len(p) {
		buf = buf[:len(p)]
	}
	n, err := r.r.Read(buf)
	return r.parse(buf[:n], p), err
}

// parse consumes in and writes data bytes to out, returning how many.
func (r *Reader) parse(in, out []byte) int {
	n := 0
	for _, b := range in {
		switch r.state {
		case stateData:
			if b == IAC {
				r.state = stateIAC
				continue
			}
			out[n] = b
			n++

		case stateIAC:
			switch b {
			case IAC:
				out[n] = IAC
				n++
				r.state = stateData
			case WILL, WONT, DO, DONT:
				r.verb = b
				r.state = stateVerb
			case SB:
				r.state = stateSB
			default:
				// NOP, GA, AYT and the other two-byte commands
				r.command(b, 0)
				r.state = stateData
			}

		case stateVerb:
			r.command(r.verb, b)
			r.state = stateData

		case stateSB:
			r.option = b
			r.sub = r.sub[:0]
			r.state = stateSBData

		case stateSBData:
			if b == IAC {
				r.state = stateSBIAC
				continue
			}
			if len(r.sub) < maxSubNegotiation {
				r.sub = append(r.sub, b)
			}

		case stateSBIAC:
			switch b {
			case IAC:
				if len(r.sub) < maxSubNegotiation {
					r.sub = append(r.sub, IAC)
				}
				r.state = stateSBData
			case SE:
				r.subNegotiation()
				r.state = stateData
			default:
				// Malformed: close the sub-negotiation and treat the byte as
				// the command it names.
				r.subNegotiation()
				r.state = stateIAC
				n += r.parse([]byte{b}, out[n:])
			}
		}
	}
	return n
}

func (r *Reader) command(cmd, option byte) {
	if r.handler != nil {
		r.handler.HandleCommand(cmd, option)
	}
}

func (r *Reader) subNegotiation() {
	if r.handler != nil {
		payload := append([]byte(nil), r.sub...)
		r.handler.HandleSubNegotiation(r.option, payload)
	}
}
