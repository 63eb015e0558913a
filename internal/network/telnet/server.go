package telnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"samizdat/internal/app"
	"samizdat/internal/network"
	"samizdat/internal/session"
)

type Server struct {
	app    *app.App
	runner network.Runner
	addr   string

	mu sync.Mutex
	ln net.Listener
}

// NewServer listens on the configured telnet port. addr overrides it when
// not empty, which tests use to bind an ephemeral port.
func NewServer(a *app.App, runner network.Runner, addr string) *Server {
	if addr == "" {
		addr = fmt.Sprintf(":%d", a.Config.Listeners.Telnet.Port)
	}
	return &Server{app: a, runner: runner, addr: addr}
}

// Listen binds the socket so callers can learn the address before Serve.
func (s *Server) Listen() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return ln.Addr(), nil
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts until Stop closes the listener.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("telnet server not listening")
	}
	defer ln.Close()

	s.app.Logger.Info("Telnet server listening", "addr", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.app.Logger.Error("Telnet accept error", "err", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	logger := s.app.Logger.With("addr", conn.RemoteAddr())
	logger.Debug("Telnet connection from")
	defer logger.Info("Telnet connection closed")

	tc := NewConnection(conn, logger)
	ch := NewChannel(tc, s.app.Config.Session.BufferSize, logger)

	network.Attach(ctx, s.app, ch, nil, s.runner, func(sess *session.Session) {
		tc.OnResize(func(cols, rows int) {
			if cols <= 0 || rows <= 0 {
				return
			}
			sess.Transport.UpdateCapabilities(func(c *session.Capabilities) {
				c.Cols, c.Rows = cols, rows
			})
		})
	})
}
