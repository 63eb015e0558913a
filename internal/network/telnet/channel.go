package telnet

import (
	"log/slog"
	"time"

	"samizdat/internal/channel"
)

// Channel is the telnet backend of channel.Channel. A single pump goroutine
// reads the connection, which strips commands and feeds both views.
type Channel struct {
	conn    *Connection
	buffers *channel.Buffers
}

var _ channel.Channel = (*Channel)(nil)
var _ channel.Negotiator = (*Channel)(nil)

func NewChannel(conn *Connection, limit int, logger *slog.Logger) *Channel {
	c := &Channel{
		conn:    conn,
		buffers: channel.NewBuffers(limit, logger),
	}
	go c.buffers.Pump(conn)
	return c
}

func (c *Channel) Kind() channel.Kind { return channel.Telnet }

func (c *Channel) Connection() *Connection { return c.conn }

func (c *Channel) Read(n int) (string, error) {
	return c.buffers.ReadText(n)
}

func (c *Channel) ReadRaw(n int, timeout time.Duration) ([]byte, error) {
	return c.buffers.ReadRaw(n, timeout)
}

func (c *Channel) Buffered() int {
	return c.buffers.Buffered()
}

func (c *Channel) Write(p []byte) error {
	if c.buffers.Closed() {
		return channel.ErrClosed
	}
	_, err := c.conn.Write(p)
	return err
}

// WriteRaw doubles IAC like Write; the peer undoubles it in binary mode too.
func (c *Channel) WriteRaw(p []byte) error {
	return c.Write(p)
}

// Drain is immediate: net.Conn writes return once the kernel has the bytes.
func (c *Channel) Drain() error {
	if c.buffers.Closed() {
		return channel.ErrClosed
	}
	return nil
}

func (c *Channel) Purge() {
	c.buffers.Purge()
}

func (c *Channel) Close() error {
	if !c.buffers.Shutdown() {
		return nil
	}
	return c.conn.Close()
}

func (c *Channel) Closed() bool {
	return c.buffers.Closed()
}

func (c *Channel) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
