package telnet

import (
	"bytes"
	"io"
	"sync"
)

// Writer serialises data and commands onto the connection. Data bytes equal
// to IAC are always sent doubled.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Escape returns p with every IAC byte doubled.
func Escape(p []byte) []byte {
	if bytes.IndexByte(p, IAC) == -1 {
		return p
	}
	buf := make([]byte, 0, len(p)+len(p)/10+1)
	for _, b := range p {
		buf = append(buf, b)
		if b == IAC {
			buf = append(buf, IAC)
		}
	}
	return buf
}

func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err = w.w.Write(Escape(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteCommand sends a Telnet command sequence.
// It automatically prepends IAC.
// Example: WriteCommand(WILL, ECHO) sends IAC WILL ECHO
func (w *Writer) WriteCommand(cmds ...byte) error {
	data := make([]byte, 1+len(cmds))
	data[0] = IAC
	copy(data[1:], cmds)

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.w.Write(data)
	return err
}

// WriteSubNegotiation sends a sub-negotiation sequence.
// It automatically wraps the data in IAC SB ... IAC SE.
func (w *Writer) WriteSubNegotiation(option byte, data []byte) error {
	escaped := Escape(data)
	buf := make([]byte, 0, 5+len(escaped))
	buf = append(buf, IAC, SB, option)
	buf = append(buf, escaped...)
	buf = append(buf, IAC, SE)

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.w.Write(buf)
	return err
}
