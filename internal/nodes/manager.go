package nodes

import (
	"errors"
	"sync"

	"samizdat/internal/session"
)

var ErrSystemFull = errors.New("system full")

type Manager struct {
	mu       sync.RWMutex
	maxNodes int
	nodes    []*Node
}

func NewManager(maxNodes int) *Manager {
	if maxNodes <= 0 {
		maxNodes = 10
	}
	return &Manager{
		maxNodes: maxNodes,
		nodes:    make([]*Node, maxNodes),
	}
}

// Acquire claims the lowest free node for s.
func (m *Manager) Acquire(s *session.Session) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, n := range m.nodes {
		if n == nil {
			node := &Node{ID: i + 1, Session: s}
			m.nodes[i] = node
			return node, nil
		}
	}
	return nil, ErrSystemFull
}

func (m *Manager) Release(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 1 || id > m.maxNodes {
		return
	}
	m.nodes[id-1] = nil
}

func (m *Manager) Get(id int) *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id < 1 || id > m.maxNodes {
		return nil
	}
	return m.nodes[id-1]
}

// List returns the occupied nodes in ID order.
func (m *Manager) List() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Node
	for _, n := range m.nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m *Manager) Max() int { return m.maxNodes }

func (m *Manager) Broadcast(msg string) {
	m.BroadcastExcept(msg, -1)
}

// BroadcastExcept writes msg to every logged-in node other than exceptID.
// Nodes in the middle of a transfer are skipped so the text cannot land in
// a binary stream.
func (m *Manager) BroadcastExcept(msg string, exceptID int) {
	for _, n := range m.List() {
		if n.ID == exceptID || n.Session == nil || n.User() == nil {
			continue
		}
		if n.Session.State() == session.Transfer {
			continue
		}
		n.Session.Transport.Writeline(msg)
	}
}

// DisconnectAll says goodbye to every node and hangs it up. Used on
// shutdown so blocked sessions return.
func (m *Manager) DisconnectAll(msg string) {
	for _, n := range m.List() {
		if n.Session == nil {
			continue
		}
		if msg != "" && n.Session.State() != session.Transfer {
			n.Session.Transport.Writeline(msg)
		}
		n.Session.Disconnect()
	}
}
