// Package commands turns chat text into session actions.
//
// Text starting with the command prefix (default "/sensei") is routed to a
// named handler; anything else is a message to the tutor. Handlers is the
// action boundary: every error becomes a user-facing notice, so transports
// only ever receive text to send back.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotACommand is returned by Parse when text lacks the command prefix.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// ErrUnknownCommand is returned by Route for an unregistered command name.
var ErrUnknownCommand = errors.New("unknown command")

// Origin identifies who sent a message and where.
type Origin struct {
	RoomID   string
	SenderID string
}

// Command is a parsed prefixed message.
type Command struct {
	Name    string
	Args    []string
	RawText string
}

// Arg returns the argument at index, if present.
func (c *Command) Arg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}

// Handler runs one command.
type Handler func(ctx context.Context, cmd *Command, origin Origin) (string, error)

// Router maps command names to handlers.
type Router struct {
	handlers map[string]Handler
	prefix   string
}

func NewRouter(prefix string) *Router {
	return &Router{handlers: make(map[string]Handler), prefix: prefix}
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string { return r.prefix }

// Register adds or replaces the handler for name.
func (r *Router) Register(name string, h Handler) {
	r.handlers[strings.ToLower(name)] = h
}

// IsCommand reports whether text addresses the router. The prefix must be
// followed by whitespace or the end of the text, so "/senseiX" is plain text.
func (r *Router) IsCommand(text string) bool {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.prefix) {
		return false
	}
	rest := text[len(r.prefix):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n'
}

// Parse splits a prefixed message into a command name and arguments. A bare
// prefix parses as "help".
func (r *Router) Parse(text string) (*Command, error) {
	if !r.IsCommand(text) {
		return nil, ErrNotACommand
	}
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), r.prefix))
	parts := strings.Fields(body)
	if len(parts) == 0 {
		return &Command{Name: "help", RawText: body}, nil
	}
	return &Command{
		Name:    strings.ToLower(parts[0]),
		Args:    parts[1:],
		RawText: body,
	}, nil
}

// Route parses text and runs the matching handler.
func (r *Router) Route(ctx context.Context, text string, origin Origin) (*Command, string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return nil, "", err
	}
	h, ok := r.handlers[cmd.Name]
	if !ok {
		return cmd, "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	reply, err := h(ctx, cmd, origin)
	return cmd, reply, err
}
