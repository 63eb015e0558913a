// Package network holds what the telnet, SSH and stdio listeners share: one
// path from an accepted channel to a running session on a node.
package network

import (
	"context"

	"samizdat/internal/app"
	"samizdat/internal/channel"
	"samizdat/internal/nodes"
	"samizdat/internal/session"
	"samizdat/internal/store"
)

// Runner drives a session once it has a node. The shell is the only one in
// production.
type Runner interface {
	Run(ctx context.Context, sess *session.Session, node *nodes.Node)
}

type RunnerFunc func(ctx context.Context, sess *session.Session, node *nodes.Node)

func (f RunnerFunc) Run(ctx context.Context, sess *session.Session, node *nodes.Node) {
	f(ctx, sess, node)
}

// Attach wraps ch in a session, claims a node and hands both to r. user is
// set on the node when the transport already authenticated the caller.
// setup, if not nil, runs before r and may subscribe to transport events.
// Attach blocks until r returns and always leaves ch closed.
func Attach(ctx context.Context, a *app.App, ch channel.Channel, user *store.User, r Runner, setup func(*session.Session)) {
	logger := a.Logger.With("transport", ch.Kind().String(), "addr", ch.RemoteAddr())
	sess := session.New(ch, a.Config.Session, logger, a.Metrics)
	defer sess.Disconnect()

	node, err := a.Nodes.Acquire(sess)
	if err != nil {
		logger.Warn("Connection rejected", "err", err)
		sess.Transport.Writeline("All nodes are busy. Please call back later.")
		return
	}
	defer a.Nodes.Release(node.ID)

	if user != nil {
		node.SetUser(user)
	}
	if setup != nil {
		setup(sess)
	}

	logger.Debug("Connection attached", "node", node.ID)
	r.Run(ctx, sess, node)
	logger.Debug("Connection detached", "node", node.ID, "state", sess.State())
}
