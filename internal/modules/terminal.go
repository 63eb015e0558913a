package modules

import (
	"fmt"
	"strings"

	"samizdat/internal/charset"
	"samizdat/internal/session"
)

// TerminalModule lets callers adjust how text reaches them.
type TerminalModule struct{}

func (m *TerminalModule) Name() string {
	return "terminal"
}

func (m *TerminalModule) Help() []string {
	return []string{
		"encoding [name]          show or change your character set",
		"7bit on|off              strip output to 7-bit ASCII",
		"xonxoff on|off           honour XON/XOFF flow control",
		"size <cols> <rows>       set your screen size",
	}
}

func (m *TerminalModule) HandleCommand(c *Context, cmd string, args string) (bool, error) {
	switch cmd {
	case "encoding", "charset":
		m.encoding(c, strings.TrimSpace(args))
		return true, nil
	case "7bit":
		toggle(c, args, "7-bit output", func(caps *session.Capabilities, on bool) { caps.SevenBit = on })
		return true, nil
	case "xonxoff":
		toggle(c, args, "XON/XOFF flow control", func(caps *session.Capabilities, on bool) { caps.FlowControl = on })
		return true, nil
	case "size":
		var cols, rows int
		if n, _ := fmt.Sscan(args, &cols, &rows); n != 2 || cols < 20 || rows < 5 {
			c.Println("Usage: size <cols> <rows>")
			return true, nil
		}
		c.Session.Transport.UpdateCapabilities(func(caps *session.Capabilities) {
			caps.Cols, caps.Rows = cols, rows
		})
		c.Printf("Screen size set to %dx%d.\r\n", cols, rows)
		return true, nil
	}
	return false, nil
}

func (m *TerminalModule) encoding(c *Context, name string) {
	t := c.Session.Transport
	if name == "" {
		c.Printf("Current encoding: %s\r\n", t.Encoding())
		c.Println("Available:")
		for _, codec := range charset.Catalogue() {
			mark := " "
			if codec.Name == t.Encoding() {
				mark = "*"
			}
			c.Printf(" %s %-14s %s\r\n", mark, codec.Name, codec.Label)
		}
		return
	}

	codec, ok := charset.Lookup(name)
	if !ok {
		c.Printf("Unknown encoding %q. Type 'encoding' for a list.\r\n", name)
		return
	}
	t.SetEncoding(codec.Name)
	c.Printf("Encoding set to %s.\r\n", codec.Name)

	if user := c.Node.User(); user != nil && user.ID != 0 {
		if err := c.App.Store.SetEncoding(user.Username, codec.Name); err != nil {
			c.Logger.Warn("Failed to save encoding", "user", user.Username, "err", err)
		}
	}
}

func toggle(c *Context, args, what string, set func(*session.Capabilities, bool)) {
	var on bool
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "yes", "1":
		on = true
	case "off", "no", "0":
	default:
		c.Println("Usage: on|off")
		return
	}
	c.Session.Transport.UpdateCapabilities(func(caps *session.Capabilities) { set(caps, on) })
	c.Printf("%s %s.\r\n", what, map[bool]string{true: "enabled", false: "disabled"}[on])
}
