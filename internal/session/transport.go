package session

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"samizdat/internal/channel"
	"samizdat/internal/charset"
)

const (
	XON  byte = 0x11
	XOFF byte = 0x13

	DefaultFlowChunk = 256

	xoffPeek    = 10 * time.Millisecond
	xonWait     = time.Second
	maxPassword = 128
)

// Transport is the text and raw I/O surface a session hands to application
// code. Text goes through the session codec; raw bytes pass straight to the
// channel. Once the channel is gone every write is a silent no-op and every
// read comes back empty.
type Transport struct {
	ch        channel.Channel
	logger    *slog.Logger
	flowChunk int

	mu           sync.Mutex
	caps         Capabilities
	codec        *charset.Codec
	decoder      *charset.Decoder
	lastActivity time.Time
	gone         bool

	// line editor state, only touched by the session goroutine
	skipLF bool
	escape int
}

// NewTransport panics when ch is nil: a transport is always built around a
// live channel.
func NewTransport(ch channel.Channel, encoding string, flowChunk int, logger *slog.Logger) *Transport {
	if ch == nil {
		panic("session: NewTransport called without a channel")
	}
	if flowChunk <= 0 {
		flowChunk = DefaultFlowChunk
	}
	codec := charset.Resolve(encoding)
	caps := DefaultCapabilities()
	caps.Encoding = codec.Name

	return &Transport{
		ch:           ch,
		logger:       logger,
		flowChunk:    flowChunk,
		caps:         caps,
		codec:        codec,
		decoder:      codec.NewDecoder(),
		lastActivity: time.Now(),
	}
}

func (t *Transport) Kind() channel.Kind { return t.ch.Kind() }

func (t *Transport) RemoteAddr() string { return t.ch.RemoteAddr() }

// Closed reports whether the channel was closed or the peer went away.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	gone := t.gone
	t.mu.Unlock()
	return gone || t.ch.Closed()
}

func (t *Transport) touch() {
	t.mu.Lock()
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

func (t *Transport) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

func (t *Transport) Capabilities() Capabilities {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.caps
}

// UpdateCapabilities applies fn under the transport lock. Resize events
// arrive on other goroutines, so callers never write the struct directly.
func (t *Transport) UpdateCapabilities(fn func(*Capabilities)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.caps)
	t.caps.Encoding = t.codec.Name
}

// SetEncoding swaps the codec for text I/O from now on and returns the name
// actually in use. Unknown names fall back to UTF-8. Bytes already buffered
// stay as they are and are decoded with the new codec when read.
func (t *Transport) SetEncoding(name string) string {
	codec := charset.Resolve(name)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.codec = codec
	t.decoder = codec.NewDecoder()
	t.caps.Encoding = codec.Name
	return codec.Name
}

func (t *Transport) Encoding() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.codec.Name
}

// markGone records that the channel reported EOF or close.
func (t *Transport) markGone(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, channel.ErrClosed) {
		t.mu.Lock()
		t.gone = true
		t.mu.Unlock()
	}
}

// Write encodes p, taken as UTF-8 text, with the session codec. It always
// reports success so it can sit behind fmt.Fprintf.
func (t *Transport) Write(p []byte) (int, error) {
	t.WriteString(string(p))
	return len(p), nil
}

func (t *Transport) WriteString(s string) {
	if s == "" || t.Closed() {
		return
	}
	caps := t.Capabilities()

	t.mu.Lock()
	codec := t.codec
	t.mu.Unlock()

	if caps.SevenBit {
		s = charset.ASCII(s)
	}
	t.send(codec.Encode(s), caps)
}

func (t *Transport) Writeline(s string) {
	t.WriteString(s + "\r\n")
}

// WriteEncoded sends bytes that are already in the terminal's encoding,
// such as ANSI art. 7-bit masking and flow control still apply.
func (t *Transport) WriteEncoded(p []byte) {
	if len(p) == 0 || t.Closed() {
		return
	}
	t.send(p, t.Capabilities())
}

func (t *Transport) send(p []byte, caps Capabilities) {
	if caps.SevenBit {
		masked := make([]byte, len(p))
		for i, b := range p {
			masked[i] = b & 0x7F
		}
		p = masked
	}

	if !caps.FlowControl {
		t.write(p)
		return
	}

	for len(p) > 0 {
		n := min(t.flowChunk, len(p))
		if !t.write(p[:n]) {
			return
		}
		p = p[n:]
		t.honourXOFF()
	}
}

func (t *Transport) write(p []byte) bool {
	if err := t.ch.Write(p); err != nil {
		t.logger.Debug("Transport write failed", "err", err)
		t.markGone(err)
		return false
	}
	if err := t.ch.Drain(); err != nil {
		t.markGone(err)
		return false
	}
	t.touch()
	return true
}

// honourXOFF consumes everything queued on the raw view and, if the last
// flow byte in it is XOFF, holds output until XON arrives or the channel
// goes away. Typed text stays readable through the text view.
func (t *Transport) honourXOFF() {
	pending, err := t.ch.ReadRaw(max(1, t.ch.Buffered()), xoffPeek)
	if err != nil {
		t.markGone(err)
		return
	}
	for n := t.ch.Buffered(); n > 0; n = t.ch.Buffered() {
		more, err := t.ch.ReadRaw(n, 0)
		if err != nil {
			t.markGone(err)
			break
		}
		pending = append(pending, more...)
	}

	paused := false
	for _, b := range pending {
		switch b {
		case XOFF:
			paused = true
		case XON:
			paused = false
		}
	}
	if !paused {
		return
	}

	t.logger.Debug("XOFF received, pausing output")
	for {
		b, err := t.ch.ReadRaw(1, xonWait)
		if errors.Is(err, channel.ErrTimeout) {
			continue
		}
		if err != nil {
			t.markGone(err)
			return
		}
		if b[0] == XON {
			t.logger.Debug("XON received, resuming output")
			return
		}
	}
}

// Read returns the next decoded text from the channel, blocking until some
// is available. It returns "" only once the channel is gone.
func (t *Transport) Read(n int) string {
	for !t.Closed() {
		s, err := t.ch.Read(n)
		if err != nil {
			t.markGone(err)
			return ""
		}

		t.mu.Lock()
		out := t.decoder.Decode(channel.EncodeWire(s))
		t.mu.Unlock()

		if out != "" {
			t.touch()
			return out
		}
		// only part of a multi-byte sequence so far
	}
	return ""
}

// ReadLine reads one line with local echo. Backspace and DEL erase the last
// character on screen, CR or LF ends the line and input beyond maxLen is
// ignored. With echo false nothing typed is shown.
func (t *Transport) ReadLine(prompt string, echo bool, maxLen int) string {
	if prompt != "" {
		t.WriteString(prompt)
	}

	var line []rune
	for {
		chunk := t.Read(1)
		if chunk == "" {
			return ""
		}

		for _, r := range chunk {
			if t.skipLF {
				t.skipLF = false
				if r == '\n' || r == 0 {
					continue
				}
			}

			if t.escape > 0 {
				t.swallowEscape(r)
				continue
			}

			switch {
			case r == '\r' || r == '\n':
				t.skipLF = r == '\r'
				t.WriteString("\r\n")
				return string(line)
			case r == 0x08 || r == 0x7F:
				if len(line) > 0 {
					line = line[:len(line)-1]
					if echo {
						t.WriteString("\b \b")
					}
				}
			case r == 0x1B:
				t.escape = 1
			case r < 0x20 || r == utf8.RuneError:
			default:
				if maxLen > 0 && len(line) >= maxLen {
					continue
				}
				line = append(line, r)
				if echo {
					t.WriteString(string(r))
				}
			}
		}
	}
}

// swallowEscape drops ANSI sequences such as cursor keys: ESC, then an
// optional '[' or 'O', then parameters up to a final byte.
func (t *Transport) swallowEscape(r rune) {
	if t.escape == 1 && (r == '[' || r == 'O') {
		t.escape = 2
		return
	}
	if t.escape == 2 && (r < 0x40 || r > 0x7E) {
		return
	}
	t.escape = 0
}

func (t *Transport) ReadPassword(prompt string) string {
	return t.ReadLine(prompt, false, maxPassword)
}

// Prompt writes a question and returns the trimmed answer.
func (t *Transport) Prompt(question string, maxLen int) string {
	return strings.TrimSpace(t.ReadLine(question, true, maxLen))
}

// WriteRaw sends binary protocol bytes unchanged.
func (t *Transport) WriteRaw(p []byte) error {
	if t.Closed() {
		return nil
	}
	if err := t.ch.WriteRaw(p); err != nil {
		t.markGone(err)
		return err
	}
	if err := t.ch.Drain(); err != nil {
		t.markGone(err)
		return err
	}
	t.touch()
	return nil
}

// ReadRaw returns exactly n raw bytes, or nil on timeout or once the channel
// is gone.
func (t *Transport) ReadRaw(n int, timeout time.Duration) []byte {
	if t.Closed() {
		return nil
	}
	b, err := t.ch.ReadRaw(n, timeout)
	if err != nil {
		t.markGone(err)
		return nil
	}
	t.touch()
	return b
}

func (t *Transport) RawBuffered() int {
	if t.Closed() {
		return 0
	}
	return t.ch.Buffered()
}

// PurgeInput discards everything queued in both views and resets the
// decoder, so negotiation residue or transfer payload never reaches the
// line editor.
func (t *Transport) PurgeInput() {
	t.ch.Purge()

	t.mu.Lock()
	t.decoder = t.codec.NewDecoder()
	t.mu.Unlock()
	t.skipLF = false
	t.escape = 0
}

// Disconnect closes the channel. Safe to call more than once.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.gone = true
	t.mu.Unlock()

	if err := t.ch.Close(); err != nil {
		t.logger.Debug("Channel close failed", "err", err)
	}
}
