package telnet

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
)

// option is what we know about one option on both sides of the link.
// local is our side (WILL/WONT), remote the peer's (DO/DONT). The offered
// flags suppress repeats so two agreeable ends cannot loop.
type option struct {
	local, remote          bool
	offeredWill, offeredDo bool
}

// Connection tracks option state for one telnet peer. Commands are handled on
// the pump goroutine while the session goroutine writes, so all state sits
// behind mu and the Writer serialises its own output.
type Connection struct {
	conn   net.Conn
	reader *Reader
	writer *Writer
	logger *slog.Logger

	mu       sync.RWMutex
	options  [256]option
	termType string
	cols     int
	rows     int
	onResize func(cols, rows int)
	changed  chan struct{}
	ended    bool
}

func NewConnection(conn net.Conn, logger *slog.Logger) *Connection {
	c := &Connection{conn: conn, logger: logger, changed: make(chan struct{})}
	c.reader = NewReader(conn, c)
	c.writer = NewWriter(conn)
	return c
}

// Read returns data with telnet commands removed.
func (c *Connection) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	if err != nil {
		c.mu.Lock()
		c.ended = true
		c.notify()
		c.mu.Unlock()
	}
	return n, err
}

// Write sends data, doubling IAC bytes.
func (c *Connection) Write(p []byte) (int, error) { return c.writer.Write(p) }

func (c *Connection) Close() error {
	err := c.conn.Close()
	c.mu.Lock()
	c.ended = true
	c.notify()
	c.mu.Unlock()
	return err
}

// Changed returns a channel that is closed on the next option change,
// sub-negotiation or end of the connection.
func (c *Connection) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// Ended reports whether the connection was closed or hit EOF.
func (c *Connection) Ended() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ended
}

// notify wakes Changed waiters. Callers hold mu.
func (c *Connection) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Connection) TerminalType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.termType
}

func (c *Connection) WindowSize() (cols, rows int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cols, c.rows
}

// OnResize registers fn to be called for every NAWS update.
func (c *Connection) OnResize(fn func(cols, rows int)) {
	c.mu.Lock()
	c.onResize = fn
	c.mu.Unlock()
}

func (c *Connection) IsLocalOptionEnabled(opt byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options[opt].local
}

func (c *Connection) IsRemoteOptionEnabled(opt byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options[opt].remote
}

// update applies fn to one option under the lock.
func (c *Connection) update(opt byte, fn func(*option)) {
	c.mu.Lock()
	fn(&c.options[opt])
	c.notify()
	c.mu.Unlock()
}

// HandleCommand answers the peer. We agree to BINARY, ECHO and SGA on our
// side and accept BINARY, SGA, NAWS and TTYPE from the peer; everything else
// is refused.
func (c *Connection) HandleCommand(cmd, opt byte) {
	c.logger.Debug("Telnet command [IN]", "cmd", commandName(cmd), "opt", optionName(opt))

	var was bool
	switch cmd {
	case DO:
		if opt != TransmitBinary && opt != Echo && opt != SGA {
			c.logCommand("OUT", WONT, opt)
			c.writer.WriteCommand(WONT, opt)
			return
		}
		c.update(opt, func(o *option) { was, o.local = o.local, true })
		if !was {
			c.SendWill(opt)
		}

	case DONT:
		c.update(opt, func(o *option) { was, o.local = o.local, false })
		if was {
			c.SendWont(opt)
		}

	case WILL:
		if opt != TransmitBinary && opt != SGA && opt != NAWS && opt != TType {
			c.logCommand("OUT", DONT, opt)
			c.writer.WriteCommand(DONT, opt)
			return
		}
		c.update(opt, func(o *option) { was, o.remote = o.remote, true })
		if !was {
			c.SendDo(opt)
			if opt == TType {
				c.SendSubNegotiation(TType, []byte{SEND})
			}
		}

	case WONT:
		c.update(opt, func(o *option) { was, o.remote = o.remote, false })
		if was {
			c.SendDont(opt)
		}

	case AYT:
		c.writer.Write([]byte("\r\n[Yes]\r\n"))
	case IP, AO, BRK:
		c.logger.Info("Telnet signal received", "cmd", commandName(cmd))
	}
}

func (c *Connection) HandleSubNegotiation(opt byte, data []byte) {
	c.logger.Debug("Telnet sub-negotiation [IN]", "opt", optionName(opt), "len", len(data))

	switch opt {
	case NAWS:
		// <16-bit width> <16-bit height>
		if len(data) < 4 {
			return
		}
		cols := int(binary.BigEndian.Uint16(data[0:2]))
		rows := int(binary.BigEndian.Uint16(data[2:4]))

		c.mu.Lock()
		c.cols, c.rows = cols, rows
		fn := c.onResize
		c.notify()
		c.mu.Unlock()

		c.logger.Debug("Telnet window size", "dims", fmt.Sprintf("%dx%d", cols, rows))
		if fn != nil {
			fn(cols, rows)
		}

	case TType:
		// IS <terminal-type>
		if len(data) < 2 || data[0] != IS {
			return
		}
		termType := strings.ToLower(string(data[1:]))
		c.mu.Lock()
		c.termType = termType
		c.notify()
		c.mu.Unlock()
		c.logger.Debug("Telnet terminal type", "type", termType)
	}
}

func (c *Connection) logCommand(direction string, cmd, opt byte) {
	c.logger.Debug("Telnet command ["+direction+"]", "cmd", commandName(cmd), "opt", optionName(opt))
}

// SendWill offers an option on our side. It is sent once until WONT.
func (c *Connection) SendWill(opt byte) error {
	var send bool
	c.update(opt, func(o *option) { send, o.offeredWill = !o.offeredWill, true })
	if !send {
		return nil
	}
	c.logCommand("OUT", WILL, opt)
	return c.writer.WriteCommand(WILL, opt)
}

func (c *Connection) SendWont(opt byte) error {
	c.update(opt, func(o *option) { o.offeredWill = false })
	c.logCommand("OUT", WONT, opt)
	return c.writer.WriteCommand(WONT, opt)
}

// SendDo asks the peer to enable an option. It is sent once until DONT.
func (c *Connection) SendDo(opt byte) error {
	var send bool
	c.update(opt, func(o *option) { send, o.offeredDo = !o.offeredDo, true })
	if !send {
		return nil
	}
	c.logCommand("OUT", DO, opt)
	return c.writer.WriteCommand(DO, opt)
}

func (c *Connection) SendDont(opt byte) error {
	c.update(opt, func(o *option) { o.offeredDo = false })
	c.logCommand("OUT", DONT, opt)
	return c.writer.WriteCommand(DONT, opt)
}

func (c *Connection) SendSubNegotiation(opt byte, data []byte) error {
	c.logger.Debug("Telnet sub-negotiation [OUT]", "opt", optionName(opt), "len", len(data))
	return c.writer.WriteSubNegotiation(opt, data)
}
