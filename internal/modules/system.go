package modules

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"samizdat/internal/session"
)

// asciiBorder is safe on every code page.
var asciiBorder = lipgloss.Border{
	Top:         "-",
	Bottom:      "-",
	Left:        "|",
	Right:       "|",
	TopLeft:     "+",
	TopRight:    "+",
	BottomLeft:  "+",
	BottomRight: "+",
}

type SystemModule struct {
	registry *Registry
}

func (m *SystemModule) Name() string {
	return "system"
}

func (m *SystemModule) Help() []string {
	return []string{
		"help                     this list",
		"info                     what we know about your terminal",
		"who                      who is online",
		"whoami                   your node and account",
		"yell <message>           shout to every node",
		"quit                     log off",
	}
}

func (m *SystemModule) HandleCommand(c *Context, cmd string, args string) (bool, error) {
	switch cmd {
	case "help", "?":
		c.Println("Commands:")
		for _, line := range m.registry.Help() {
			c.Println("  " + line)
		}
		return true, nil
	case "info":
		c.Println(infoBox(c))
		return true, nil
	case "who":
		m.who(c)
		return true, nil
	case "whoami":
		c.Printf("You are %s on node %d.\r\n", c.Node.Username(), c.Node.ID)
		return true, nil
	case "yell":
		if args == "" {
			c.Println("Usage: yell <message>")
			return true, nil
		}
		c.App.Nodes.BroadcastExcept(fmt.Sprintf("\r\n[Node %d yells]: %s", c.Node.ID, args), c.Node.ID)
		c.Println("You yelled to everyone.")
		return true, nil
	}
	return false, nil
}

func (m *SystemModule) who(c *Context) {
	c.Printf("%-5s %-16s %-8s %-14s %s\r\n", "Node", "User", "Via", "Doing", "Idle")
	for _, n := range c.App.Nodes.List() {
		name := n.Username()
		if name == "" {
			name = "(logging in)"
		}
		idle := time.Since(n.Session.Transport.LastActivity()).Round(time.Second)
		c.Printf("%-5d %-16s %-8s %-14s %s\r\n", n.ID, name, n.Session.Kind(), n.Session.State(), idle)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func reported(b bool) string {
	if b {
		return "reported by client"
	}
	return "default"
}

// infoBox draws the caller's capabilities. Only UTF-8 callers get the
// rounded border; everyone else gets plain ASCII.
func infoBox(c *Context) string {
	caps := c.Session.Transport.Capabilities()
	term := caps.TerminalType
	if term == "" {
		term = "unknown"
	}

	lines := []string{
		fmt.Sprintf("Node       %d (%s from %s)", c.Node.ID, c.Session.Kind(), c.Session.Transport.RemoteAddr()),
		fmt.Sprintf("Terminal   %s, %dx%d", term, caps.Cols, caps.Rows),
		fmt.Sprintf("Encoding   %s", caps.Encoding),
		fmt.Sprintf("ANSI       %s, colour %s", yesNo(caps.ANSI), yesNo(caps.Color)),
		fmt.Sprintf("Window     %s", reported(caps.NAWS)),
		fmt.Sprintf("Echo       %s", yesNo(caps.Echo)),
		fmt.Sprintf("Binary     %s", yesNo(caps.Binary)),
		fmt.Sprintf("RIPscrip   %s", yesNo(caps.RIP)),
		fmt.Sprintf("7-bit      %s", yesNo(caps.SevenBit)),
		fmt.Sprintf("XON/XOFF   %s", yesNo(caps.FlowControl)),
		fmt.Sprintf("Online     %s", time.Since(c.Session.Started).Round(time.Second)),
	}

	border := asciiBorder
	if caps.Encoding == "utf-8" && !caps.SevenBit {
		border = lipgloss.RoundedBorder()
	}

	box := lipgloss.NewStyle().
		BorderStyle(border).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
	return strings.ReplaceAll(box, "\n", "\r\n")
}

// area moves the session to another interactive area.
func area(s *session.Session, to session.State) error {
	if s.State() == to {
		return nil
	}
	return s.Transition(to)
}
