package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"samizdat/internal/channel"
	"samizdat/internal/config"
	"samizdat/internal/metrics"
)

var (
	ripQuery      = []byte("\x1b[!|")
	ripSignatures = [][]byte{[]byte("RIPTERM"), []byte("RIPSCRIP")}
)

const (
	ripReplyLimit = 100
	ripReplyGap   = 50 * time.Millisecond
)

// Session ties one channel to its lifecycle state. It belongs to a single
// goroutine; only State and the transport's capabilities are read from
// elsewhere (node listings, resize callbacks).
type Session struct {
	ID        string
	Transport *Transport
	Started   time.Time

	cfg     config.SessionConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	state State
	prior State
	once  sync.Once
}

func New(ch channel.Channel, cfg config.SessionConfig, logger *slog.Logger, m *metrics.Metrics) *Session {
	id := uuid.NewString()
	logger = logger.With("session", id[:8])

	s := &Session{
		ID:        id,
		Transport: NewTransport(ch, cfg.DefaultEncoding, cfg.FlowControlChunk, logger),
		Started:   time.Now(),
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		state:     Connecting,
	}
	m.SessionOpened(ch.Kind().String())
	return s
}

func (s *Session) Kind() channel.Kind { return s.Transport.Kind() }

func (s *Session) Logger() *slog.Logger { return s.logger }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to == Disconnecting {
		return fmt.Errorf("%w: use Disconnect", ErrInvalidTransition)
	}
	if !canTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.logger.Debug("Session state", "from", s.state, "to", to)
	s.state = to
	return nil
}

// Start runs the pre-login phase. Telnet sessions negotiate options and
// probe for RIP; other transports go straight to Login.
func (s *Session) Start(ctx context.Context) error {
	if s.Kind() == channel.Telnet {
		if err := s.Transition(Negotiating); err != nil {
			return err
		}
		s.Negotiate(ctx)
		if s.cfg.ProbeRIP() {
			s.ProbeRIP(ctx)
		}
	}
	return s.Transition(Login)
}

// Negotiate runs the telnet option exchange when the channel has one and
// copies whatever it learned into the capabilities. It never fails; a peer
// that stays silent simply leaves the defaults in place.
func (s *Session) Negotiate(ctx context.Context) {
	n, ok := s.Transport.ch.(channel.Negotiator)
	if !ok {
		return
	}

	result := n.Negotiate(ctx, s.cfg.NegotiationTimeout)
	s.metrics.Negotiated(result.Elapsed, result.TimedOut)

	s.Transport.UpdateCapabilities(func(c *Capabilities) {
		c.Binary = result.BinaryIn && result.BinaryOut
		c.NAWS = result.NAWS
		c.Echo = result.Echo
		if result.Cols > 0 && result.Rows > 0 {
			c.Cols, c.Rows = result.Cols, result.Rows
		}
		if result.TerminalType != "" {
			c.TerminalType = result.TerminalType
		}
	})

	if result.TimedOut {
		s.logger.Info("Negotiation timed out, keeping defaults", "elapsed", result.Elapsed)
	}
	s.Transport.PurgeInput()
}

// ProbeRIP asks the terminal to identify itself as RIPscrip capable. No
// answer is the normal case and leaves the flag false.
func (s *Session) ProbeRIP(ctx context.Context) bool {
	t := s.Transport
	if err := t.WriteRaw(ripQuery); err != nil {
		return false
	}

	select {
	case <-time.After(s.cfg.RIPProbeDelay):
	case <-ctx.Done():
		return false
	}

	reply := t.ReadRaw(1, s.cfg.RIPProbeTimeout)
	for reply != nil && len(reply) < ripReplyLimit {
		b := t.ReadRaw(1, ripReplyGap)
		if b == nil {
			break
		}
		reply = append(reply, b...)
	}
	t.PurgeInput()

	rip := false
	for _, sig := range ripSignatures {
		if bytes.Contains(reply, sig) {
			rip = true
			break
		}
	}
	t.UpdateCapabilities(func(c *Capabilities) { c.RIP = rip })
	if rip {
		s.logger.Info("RIP terminal detected")
	}
	return rip
}

// BeginTransfer moves an interactive session into Transfer and clears any
// typed-ahead input so it cannot be mistaken for protocol bytes.
func (s *Session) BeginTransfer() error {
	s.mu.Lock()
	if !s.state.Interactive() {
		from := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, Transfer)
	}
	s.prior = s.state
	s.state = Transfer
	s.mu.Unlock()

	s.Transport.PurgeInput()
	return nil
}

// EndTransfer returns to the state BeginTransfer left and drops any protocol
// bytes the peer sent after the transfer finished.
func (s *Session) EndTransfer() {
	s.mu.Lock()
	if s.state != Transfer {
		s.mu.Unlock()
		return
	}
	s.state = s.prior
	s.mu.Unlock()

	s.Transport.PurgeInput()
}

// Disconnect is the only way a session releases its channel. It is
// idempotent and leaves the session in Disconnecting for good.
func (s *Session) Disconnect() {
	s.once.Do(func() {
		s.mu.Lock()
		s.state = Disconnecting
		s.mu.Unlock()

		s.Transport.Disconnect()
		s.metrics.SessionClosed(s.Kind().String())
		s.logger.Debug("Session disconnected", "duration", time.Since(s.Started).Round(time.Second))
	})
}
