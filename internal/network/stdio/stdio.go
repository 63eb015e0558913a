// Package stdio runs a single session on stdin/stdout, the way mgetty or
// another getty hands over an answered call.
package stdio

import (
	"context"
	"io"
	"os"

	"golang.org/x/term"

	"samizdat/internal/app"
	"samizdat/internal/channel"
	"samizdat/internal/network"
	"samizdat/internal/session"
)

// CallerInfo is what the getty exports about the call.
type CallerInfo struct {
	CallerID   string
	CallerName string
	CalledID   string
	Connect    string
	Device     string
	Term       string
}

func CallerFromEnv() CallerInfo {
	return CallerInfo{
		CallerID:   os.Getenv("CALLER_ID"),
		CallerName: os.Getenv("CALLER_NAME"),
		CalledID:   os.Getenv("CALLED_ID"),
		Connect:    os.Getenv("CONNECT"),
		Device:     os.Getenv("DEVICE"),
		Term:       os.Getenv("TERM"),
	}
}

// Addr names the caller for logs and the who list.
func (c CallerInfo) Addr() string {
	switch {
	case c.CallerID != "":
		return c.CallerID
	case c.Device != "":
		return "modem:" + c.Device
	default:
		return "modem"
	}
}

// Run serves one session on the process's stdin and stdout. A terminal on
// stdin is put in raw mode for the duration.
func Run(ctx context.Context, a *app.App, runner network.Runner) error {
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer term.Restore(fd, state)
	}
	Serve(ctx, a, runner, os.Stdin, os.Stdout, CallerFromEnv())
	return nil
}

// Serve runs one session over r and w and returns when it ends.
func Serve(ctx context.Context, a *app.App, runner network.Runner, r io.Reader, w io.Writer, info CallerInfo) {
	logger := a.Logger.With("device", info.Device)
	logger.Info("Stdio session started", "caller", info.CallerID, "name", info.CallerName, "connect", info.Connect)
	defer logger.Info("Stdio session ended")

	ch := channel.NewPipe(r, w, info.Addr(), a.Config.Session.BufferSize, logger)
	network.Attach(ctx, a, ch, nil, runner, func(sess *session.Session) {
		if info.Term == "" {
			return
		}
		sess.Transport.UpdateCapabilities(func(c *session.Capabilities) {
			c.TerminalType = info.Term
		})
	})
}
