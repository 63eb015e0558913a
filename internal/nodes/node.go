package nodes

import (
	"fmt"
	"sync"

	"samizdat/internal/session"
	"samizdat/internal/store"
)

type Node struct {
	ID      int
	Session *session.Session

	mu   sync.RWMutex
	user *store.User
}

// SetUser records who logged in on this node.
func (n *Node) SetUser(u *store.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.user = u
}

func (n *Node) User() *store.User {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.user
}

// Username is empty until someone logs in.
func (n *Node) Username() string {
	if u := n.User(); u != nil {
		return u.Username
	}
	return ""
}

func (n *Node) String() string {
	if n.Session == nil {
		return fmt.Sprintf("Node %d (Disconnected)", n.ID)
	}
	return fmt.Sprintf("Node %d (%s %s)", n.ID, n.Session.Kind(), n.Session.Transport.RemoteAddr())
}
