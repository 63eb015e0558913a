package channel

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// PipeChannel is the backend for plain byte streams such as stdin/stdout under a
// getty. Bytes are carried as they are in both directions.
type PipeChannel struct {
	r       io.Reader
	w       io.Writer
	addr    string
	buffers *Buffers

	wmu sync.Mutex
}

var _ Channel = (*PipeChannel)(nil)

func NewPipe(r io.Reader, w io.Writer, addr string, limit int, logger *slog.Logger) *PipeChannel {
	p := &PipeChannel{
		r:       r,
		w:       w,
		addr:    addr,
		buffers: NewBuffers(limit, logger),
	}
	go p.buffers.Pump(r)
	return p
}

func (p *PipeChannel) Kind() Kind { return Pipe }

func (p *PipeChannel) Read(n int) (string, error) {
	return p.buffers.ReadText(n)
}

func (p *PipeChannel) ReadRaw(n int, timeout time.Duration) ([]byte, error) {
	return p.buffers.ReadRaw(n, timeout)
}

func (p *PipeChannel) Buffered() int { return p.buffers.Buffered() }

func (p *PipeChannel) Write(b []byte) error {
	if p.buffers.Closed() {
		return ErrClosed
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_, err := p.w.Write(b)
	return err
}

func (p *PipeChannel) WriteRaw(b []byte) error {
	return p.Write(b)
}

func (p *PipeChannel) Drain() error {
	if p.buffers.Closed() {
		return ErrClosed
	}
	return nil
}

func (p *PipeChannel) Purge() { p.buffers.Purge() }

// Close shuts the buffers and closes whichever ends implement io.Closer.
func (p *PipeChannel) Close() error {
	if !p.buffers.Shutdown() {
		return nil
	}
	var err error
	if c, ok := p.r.(io.Closer); ok {
		err = c.Close()
	}
	if c, ok := p.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (p *PipeChannel) Closed() bool { return p.buffers.Closed() }

func (p *PipeChannel) RemoteAddr() string { return p.addr }
