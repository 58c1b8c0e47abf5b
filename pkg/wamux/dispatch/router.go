// Package dispatch – router.go maps prefixed text to registered command
// descriptors. Unknown commands are silently ignored; handler errors are
// contained at this boundary and never crash the event stream.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Command is one registered command descriptor. Names are
// case-insensitive and unique; a later registration with the same name
// overwrites the earlier one.
type Command struct {
	// Name is the token that invokes the command, without prefix.
	Name string

	// Description is shown in the menu.
	Description string

	// Execute runs the command. args are the whitespace-split tokens
	// after the command name. Errors are logged and turned into one
	// generic failure reply.
	Execute func(ctx context.Context, c *Context, args []string) error
}

// failureReply is the generic user-visible text for handler errors.
const failureReply = "Something went wrong running that command."

// Router holds the command table. Built once at startup and treated as
// read-only while dispatching.
type Router struct {
	prefix   string
	commands map[string]*Command
	logger   *slog.Logger
}

// NewRouter creates a router for the given command prefix.
func NewRouter(prefix string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "."
	}
	return &Router{
		prefix:   prefix,
		commands: make(map[string]*Command),
		logger:   logger.With("component", "router"),
	}
}

// Prefix returns the configured command prefix.
func (r *Router) Prefix() string { return r.prefix }

// Register adds commands to the table, last writer wins per name.
func (r *Router) Register(cmds ...*Command) {
	for _, cmd := range cmds {
		if cmd == nil || cmd.Name == "" || cmd.Execute == nil {
			continue
		}
		r.commands[strings.ToLower(cmd.Name)] = cmd
	}
}

// Commands returns the registered descriptors, for menu rendering.
func (r *Router) Commands() []*Command {
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	return out
}

// Dispatch parses c.Text and runs the matching command, if any. Returns
// true when a command executed (successfully or not).
func (r *Router) Dispatch(ctx context.Context, c *Context) bool {
	if !strings.HasPrefix(c.Text, r.prefix) {
		return false
	}

	fields := strings.Fields(strings.TrimPrefix(c.Text, r.prefix))
	if len(fields) == 0 {
		return false
	}

	name := strings.ToLower(fields[0])
	args := fields[1:]

	cmd, ok := r.commands[name]
	if !ok {
		// Unrecognized commands get no reply at all.
		return false
	}

	if err := r.execute(ctx, cmd, c, args); err != nil {
		r.logger.Error("command failed",
			"command", cmd.Name,
			"account", c.AccountID,
			"chat", c.Chat,
			"error", err)
		if replyErr := c.Reply(ctx, failureReply); replyErr != nil {
			r.logger.Error("failure reply failed", "command", cmd.Name, "error", replyErr)
		}
	}
	return true
}

// execute runs one handler, converting panics into errors so a broken
// command can never take down the dispatch loop.
func (r *Router) execute(ctx context.Context, cmd *Command, c *Context, args []string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{command: cmd.Name, value: rec}
		}
	}()
	return cmd.Execute(ctx, c, args)
}

type panicError struct {
	command string
	value   any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic in command %s: %v", e.command, e.value)
}
