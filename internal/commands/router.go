// Package commands provides slash-command parsing and routing shared by the
// chat front-ends
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Command represents a parsed command
type Command struct {
	Name    string
	Args    []string
	RawText string
}

// Caller identifies who sent a command
type Caller struct {
	UserID      string
	DisplayName string
	Privileged  bool
}

// ErrNotACommand is returned by Parse when the message does not start with the
// command prefix
var ErrNotACommand = errors.New("not a command (missing prefix)")

// ErrUnknownCommand is returned by Route when no handler is registered
var ErrUnknownCommand = errors.New("unknown command")

// Handler is a function that handles a command
type Handler func(ctx context.Context, cmd *Command, caller Caller) (string, error)

// Router routes commands to handlers
type Router struct {
	handlers map[string]Handler
	prefix   string
}

// NewRouter creates a new command router
func NewRouter(prefix string) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
	}
}

// Register registers a command handler
func (r *Router) Register(command string, handler Handler) {
	r.handlers[strings.ToLower(command)] = handler
}

// IsCommand reports whether text carries the command prefix
func (r *Router) IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), r.prefix)
}

// Parse parses a message into a command
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)

	// Check if message starts with our prefix
	if !strings.HasPrefix(text, r.prefix) {
		return nil, ErrNotACommand
	}

	// Remove prefix
	text = strings.TrimSpace(strings.TrimPrefix(text, r.prefix))
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	return &Command{
		Name:    strings.ToLower(parts[0]),
		Args:    parts[1:],
		RawText: text,
	}, nil
}

// Route parses and routes a command to its handler
func (r *Router) Route(ctx context.Context, text string, caller Caller) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}

	handler, ok := r.handlers[cmd.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}

	return handler(ctx, cmd, caller)
}

// GetArg returns an argument by index
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}
