// Package shell drives a session after connect: pre-login negotiation,
// login and the command loop.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"samizdat/internal/ansi"
	"samizdat/internal/app"
	"samizdat/internal/modules"
	"samizdat/internal/nodes"
	"samizdat/internal/session"
	"samizdat/internal/store"
)

const (
	maxUsername = 32
	maxCommand  = 200
)

type Shell struct {
	app      *app.App
	registry *modules.Registry
}

func New(a *app.App, registry *modules.Registry) *Shell {
	if registry == nil {
		registry = modules.Default()
	}
	return &Shell{app: a, registry: registry}
}

// Run owns sess until it ends and always leaves it disconnected. A node that
// already carries a user (SSH) skips the login prompt.
func (sh *Shell) Run(ctx context.Context, sess *session.Session, node *nodes.Node) {
	defer sess.Disconnect()
	logger := sess.Logger().With("node", node.ID)
	t := sess.Transport

	if err := sess.Start(ctx); err != nil {
		logger.Warn("Session failed to start", "err", err)
		return
	}
	caps := t.Capabilities()
	logger.Info("Session started", "transport", sess.Kind(), "addr", t.RemoteAddr(), "term", caps.TerminalType, "cols", caps.Cols, "rows", caps.Rows, "rip", caps.RIP)

	sh.show(sh.app.Config.General.Welcome, t, logger)
	t.Writeline("")
	t.Writeline(fmt.Sprintf("Welcome to %s, node %d.", sh.boardName(), node.ID))
	if d := sh.app.Config.General.Description; d != "" {
		t.Writeline(d)
	}

	user := node.User()
	if user == nil {
		user = sh.login(ctx, sess)
		if user == nil {
			t.Writeline("Goodbye.")
			return
		}
		node.SetUser(user)
	}
	if err := sess.Transition(session.Authenticated); err != nil {
		logger.Warn("Login state rejected", "err", err)
		return
	}
	if user.ID != 0 {
		if err := sh.app.Store.RecordLogin(user); err != nil {
			logger.Warn("Failed to record login", "user", user.Username, "err", err)
		}
	}
	if user.Encoding != "" {
		t.SetEncoding(user.Encoding)
	}
	logger = logger.With("user", user.Username)
	logger.Info("User logged in")

	if err := sess.Transition(session.Menu); err != nil {
		return
	}
	t.Writeline(fmt.Sprintf("Hello %s. Type 'help' for a list of commands.", user.Username))

	c := &modules.Context{Ctx: ctx, App: sh.app, Session: sess, Node: node, Logger: logger}
	sh.loop(c)

	sh.show(sh.app.Config.General.Goodbye, t, logger)
	logger.Info("User logged off")
}

func (sh *Shell) loop(c *modules.Context) {
	t := c.Session.Transport
	for {
		if c.Ctx.Err() != nil {
			t.Writeline("\r\nThe system is going down. Goodbye.")
			return
		}

		line := strings.TrimSpace(t.ReadLine(fmt.Sprintf("\r\n[%s] %s> ", c.Session.State(), c.Node.Username()), true, maxCommand))
		if t.Closed() {
			return
		}
		if line == "" {
			continue
		}

		cmd, args, _ := strings.Cut(line, " ")
		cmd = strings.ToLower(cmd)
		switch cmd {
		case "quit", "bye", "logoff", "exit":
			t.Writeline("Goodbye.")
			return
		case "menu":
			if err := c.Session.Transition(session.Menu); err != nil {
				t.Writeline("You are already at the menu.")
			}
			continue
		}

		handled, err := sh.registry.Dispatch(c, cmd, strings.TrimSpace(args))
		switch {
		case err != nil:
			c.Logger.Warn("Command failed", "cmd", cmd, "err", err)
			t.Writeline("Something went wrong: " + err.Error())
		case !handled:
			t.Writeline(fmt.Sprintf("Unknown command %q. Type 'help' for a list.", cmd))
		}
	}
}

// login prompts for credentials up to the configured number of attempts.
func (sh *Shell) login(ctx context.Context, sess *session.Session) *store.User {
	t := sess.Transport
	attempts := sh.app.Config.Session.LoginAttempts

	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return nil
		}
		name := strings.TrimSpace(t.Prompt("\r\nUsername: ", maxUsername))
		if t.Closed() {
			return nil
		}
		if name == "" {
			continue
		}
		password := t.ReadPassword("Password: ")
		if t.Closed() {
			return nil
		}

		user, err := sh.app.Store.Authenticate(name, password)
		if err == nil {
			return user
		}
		if !errors.Is(err, store.ErrUserNotFound) && !errors.Is(err, store.ErrInvalidPassword) {
			sess.Logger().Error("Authentication error", "user", name, "err", err)
		} else {
			sess.Logger().Info("Login failed", "user", name)
		}
		t.Writeline("Login incorrect.")
	}
	t.Writeline("Too many failed attempts.")
	return nil
}

func (sh *Shell) boardName() string {
	if n := sh.app.Config.General.BoardName; n != "" {
		return n
	}
	return "samizdat"
}

func (sh *Shell) show(path string, t *session.Transport, logger *slog.Logger) {
	if path == "" {
		return
	}
	screen, err := ansi.Load(path)
	if err != nil {
		logger.Debug("Screen not shown", "path", path, "err", err)
		return
	}
	screen.Show(t)
}
