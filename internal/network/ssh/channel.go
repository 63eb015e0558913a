package ssh

import (
	"log/slog"
	"time"

	"github.com/gliderlabs/ssh"

	"samizdat/internal/channel"
)

// Channel is the SSH backend of channel.Channel. SSH is already 8-bit clean,
// so Write and WriteRaw both send bytes untouched.
type Channel struct {
	sess    ssh.Session
	buffers *channel.Buffers
}

var _ channel.Channel = (*Channel)(nil)

func NewChannel(sess ssh.Session, limit int, logger *slog.Logger) *Channel {
	c := &Channel{
		sess:    sess,
		buffers: channel.NewBuffers(limit, logger),
	}
	go c.buffers.Pump(sess)
	return c
}

func (c *Channel) Kind() channel.Kind { return channel.SSH }

func (c *Channel) Read(n int) (string, error) {
	return c.buffers.ReadText(n)
}

func (c *Channel) ReadRaw(n int, timeout time.Duration) ([]byte, error) {
	return c.buffers.ReadRaw(n, timeout)
}

func (c *Channel) Buffered() int { return c.buffers.Buffered() }

func (c *Channel) Write(p []byte) error {
	if c.buffers.Closed() {
		return channel.ErrClosed
	}
	_, err := c.sess.Write(p)
	return err
}

func (c *Channel) WriteRaw(p []byte) error {
	return c.Write(p)
}

// Drain returns at once; the SSH channel applies its own window.
func (c *Channel) Drain() error {
	if c.buffers.Closed() {
		return channel.ErrClosed
	}
	return nil
}

func (c *Channel) Purge() { c.buffers.Purge() }

func (c *Channel) Close() error {
	if !c.buffers.Shutdown() {
		return nil
	}
	return c.sess.Close()
}

func (c *Channel) Closed() bool { return c.buffers.Closed() }

func (c *Channel) RemoteAddr() string {
	if addr := c.sess.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
