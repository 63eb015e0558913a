package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gliderlabs/ssh"

	"samizdat/internal/app"
	"samizdat/internal/network"
	"samizdat/internal/session"
	"samizdat/internal/store"
)

type contextKey struct{}

// userKey carries the authenticated *store.User from the password handler
// to the session handler.
var userKey contextKey

type Server struct {
	app    *app.App
	runner network.Runner
	server *ssh.Server

	mu  sync.Mutex
	ln  net.Listener
	ctx context.Context
}

// NewServer listens on the configured SSH port, or on addr when not empty.
func NewServer(a *app.App, runner network.Runner, addr string) *Server {
	if addr == "" {
		addr = fmt.Sprintf(":%d", a.Config.Listeners.SSH.Port)
	}
	s := &Server{app: a, runner: runner, ctx: context.Background()}
	s.server = &ssh.Server{
		Addr:            addr,
		Handler:         s.HandleSession,
		PasswordHandler: s.PasswordHandler,
	}
	return s
}

// HostKeyFile loads the host key from an OpenSSH PEM file.
func (s *Server) HostKeyFile(path string) error {
	return s.server.SetOption(ssh.HostKeyFile(path))
}

func (s *Server) HostKeyPEM(pem []byte) error {
	return s.server.SetOption(ssh.HostKeyPEM(pem))
}

func (s *Server) Listen() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
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

// Serve accepts until Stop. ctx is handed to every session it starts.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.ctx = ctx
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ssh server not listening")
	}

	s.app.Logger.Info("SSH server listening", "addr", ln.Addr())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	return s.server.Close()
}

func (s *Server) PasswordHandler(ctx ssh.Context, password string) bool {
	user, err := s.app.Store.Authenticate(ctx.User(), password)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) && !errors.Is(err, store.ErrInvalidPassword) {
			s.app.Logger.Error("SSH authentication error", "user", ctx.User(), "err", err)
		} else {
			s.app.Logger.Info("SSH login failed", "user", ctx.User(), "addr", ctx.RemoteAddr())
		}
		return false
	}
	ctx.SetValue(userKey, user)
	return true
}

func (s *Server) HandleSession(sess ssh.Session) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	user, _ := sess.Context().Value(userKey).(*store.User)
	logger := s.app.Logger.With("addr", sess.RemoteAddr(), "user", sess.User())
	ch := NewChannel(sess, s.app.Config.Session.BufferSize, logger)

	pty, winCh, isPty := sess.Pty()
	logger.Info("SSH connection established", "pty", isPty, "term", pty.Term, "cols", pty.Window.Width, "rows", pty.Window.Height)
	defer logger.Info("SSH connection closed")

	network.Attach(ctx, s.app, ch, user, s.runner, func(ses *session.Session) {
		if !isPty {
			return
		}
		resize := func(w ssh.Window) {
			if w.Width <= 0 || w.Height <= 0 {
				return
			}
			ses.Transport.UpdateCapabilities(func(c *session.Capabilities) {
				c.Cols, c.Rows = w.Width, w.Height
			})
		}
		ses.Transport.UpdateCapabilities(func(c *session.Capabilities) {
			c.NAWS = true
			if pty.Term != "" {
				c.TerminalType = pty.Term
			}
		})
		resize(pty.Window)
		go func() {
			for w := range winCh {
				resize(w)
			}
		}()
	})
}
