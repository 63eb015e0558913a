package channel

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// DefaultLimit bounds each view of a channel.
const DefaultLimit = 1 << 20

const pumpChunk = 4096

// DecodeWire maps every byte to exactly one character (ISO-8859-1), so the
// text view can always be turned back into the original bytes.
func DecodeWire(p []byte) string {
	var sb strings.Builder
	sb.Grow(len(p))
	for _, b := range p {
		sb.WriteRune(charmap.ISO8859_1.DecodeByte(b))
	}
	return sb.String()
}

// EncodeWire reverses DecodeWire. Characters outside the 8-bit range become '?'.
func EncodeWire(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

type queue struct {
	buf []byte
}

// push appends p and drops the oldest bytes beyond limit.
func (q *queue) push(p []byte, limit int) int {
	q.buf = append(q.buf, p...)
	if limit > 0 && len(q.buf) > limit {
		dropped := len(q.buf) - limit
		q.buf = append(q.buf[:0], q.buf[dropped:]...)
		return dropped
	}
	return 0
}

func (q *queue) take(n int) []byte {
	if n > len(q.buf) {
		n = len(q.buf)
	}
	out := make([]byte, n)
	copy(out, q.buf[:n])
	q.buf = q.buf[n:]
	if len(q.buf) == 0 {
		q.buf = nil
	}
	return out
}

func (q *queue) reset() {
	q.buf = nil
}

// Buffers holds the text and raw views of one channel. They are filled only
// by Feed (normally from Pump) and drained independently by readers.
type Buffers struct {
	mu     sync.Mutex
	text   queue
	raw    queue
	eof    bool
	closed bool
	signal chan struct{}
	limit  int
	logger *slog.Logger
}

func NewBuffers(limit int, logger *slog.Logger) *Buffers {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Buffers{
		limit:  limit,
		logger: logger,
		signal: make(chan struct{}),
	}
}

// notify wakes every waiter. Callers hold b.mu.
func (b *Buffers) notify() {
	close(b.signal)
	b.signal = make(chan struct{})
}

// Feed fans one chunk into both views.
func (b *Buffers) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if dropped := b.raw.push(p, b.limit); dropped > 0 {
		b.logger.Warn("Raw buffer overflow, dropped oldest bytes", "dropped", dropped)
	}
	if dropped := b.text.push(p, b.limit); dropped > 0 {
		b.logger.Warn("Text buffer overflow, dropped oldest bytes", "dropped", dropped)
	}
	b.notify()
}

// SetEOF records that the transport will deliver nothing more.
func (b *Buffers) SetEOF() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.eof {
		return
	}
	b.eof = true
	b.notify()
}

// Shutdown marks the buffers closed and reports whether this call did it.
func (b *Buffers) Shutdown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.closed = true
	b.text.reset()
	b.raw.reset()
	b.notify()
	return true
}

func (b *Buffers) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Buffers) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.raw.buf)
}

func (b *Buffers) Purge() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.reset()
	b.raw.reset()
}

// ReadText blocks until the text view has data, then returns up to n
// characters of it.
func (b *Buffers) ReadText(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return "", ErrClosed
		}
		if len(b.text.buf) > 0 {
			out := b.text.take(n)
			b.mu.Unlock()
			return DecodeWire(out), nil
		}
		if b.eof {
			b.mu.Unlock()
			return "", io.EOF
		}
		wait := b.signal
		b.mu.Unlock()
		<-wait
	}
}

// ReadRaw returns exactly n raw bytes. The timeout covers the whole call,
// however many wake-ups it takes.
func (b *Buffers) ReadRaw(n int, timeout time.Duration) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		if len(b.raw.buf) >= n {
			out := b.raw.take(n)
			b.mu.Unlock()
			return out, nil
		}
		if b.eof {
			b.mu.Unlock()
			return nil, io.EOF
		}
		if expired == nil {
			b.mu.Unlock()
			return nil, ErrTimeout
		}
		wait := b.signal
		b.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return nil, ErrTimeout
		}
	}
}

// Pump copies r into the buffers until r fails. It is the only reader of
// the underlying transport.
func (b *Buffers) Pump(r io.Reader) {
	buf := make([]byte, pumpChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.Feed(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !b.Closed() {
				b.logger.Debug("Channel pump stopped", "err", err)
			}
			b.SetEOF()
			return
		}
	}
}
