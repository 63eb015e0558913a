package modules

import (
	"context"
	"fmt"
	"log/slog"

	"samizdat/internal/app"
	"samizdat/internal/nodes"
	"samizdat/internal/session"
)

// Module defines the base interface for pluggable functionality.
type Module interface {
	// Name returns the unique identifier for the module.
	Name() string
}

// CommandHandler is an optional interface for modules that process user commands.
type CommandHandler interface {
	Module
	// HandleCommand processes a command.
	// Returns true if the command was handled, false otherwise.
	HandleCommand(c *Context, cmd string, args string) (bool, error)
}

// Helper lists the commands a module understands, one line each.
type Helper interface {
	Help() []string
}

// Context is everything a command may touch for the session it runs in.
type Context struct {
	Ctx     context.Context
	App     *app.App
	Session *session.Session
	Node    *nodes.Node
	Logger  *slog.Logger
}

func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.Session.Transport, format, args...)
}

func (c *Context) Println(s string) {
	c.Session.Transport.Writeline(s)
}

// Registry holds all available modules in registration order.
type Registry struct {
	modules map[string]Module
	order   []Module
}

func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]Module),
	}
}

func (r *Registry) Register(m Module) {
	if _, ok := r.modules[m.Name()]; !ok {
		r.order = append(r.order, m)
	}
	r.modules[m.Name()] = m
}

func (r *Registry) Get(name string) Module {
	return r.modules[name]
}

// Dispatch offers cmd to each command handler until one takes it.
func (r *Registry) Dispatch(c *Context, cmd, args string) (bool, error) {
	for _, m := range r.order {
		h, ok := r.modules[m.Name()].(CommandHandler)
		if !ok {
			continue
		}
		handled, err := h.HandleCommand(c, cmd, args)
		if handled || err != nil {
			return handled, err
		}
	}
	return false, nil
}

// Help collects every module's help lines.
func (r *Registry) Help() []string {
	var lines []string
	for _, m := range r.order {
		if h, ok := r.modules[m.Name()].(Helper); ok {
			lines = append(lines, h.Help()...)
		}
	}
	return lines
}

// Default registers the modules every session gets.
func Default() *Registry {
	r := NewRegistry()
	r.Register(&SystemModule{registry: r})
	r.Register(&TerminalModule{})
	r.Register(&TransferModule{})
	return r
}
