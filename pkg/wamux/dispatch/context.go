// Package dispatch routes inbound events: it normalizes the payload,
// gates command access, runs the command table and fans the event out to
// the registered auto-behavior observers.
package dispatch

import (
	"context"
	"strings"

	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// Context is the immutable per-message view handed to command handlers.
// Constructed once per event, passed by value semantics: handlers never
// mutate it.
type Context struct {
	// Conn is the live connection of the receiving account.
	Conn transport.Conn

	// AccountID is the receiving account's bare number.
	AccountID string

	// Chat is the conversation JID the message arrived in.
	Chat string

	// Sender is the author JID (equals Chat in direct chats).
	Sender string

	// SenderName is the author's push name when known.
	SenderName string

	// MessageID is the transport message id.
	MessageID string

	IsGroup    bool
	IsFromSelf bool
	IsOwner    bool

	// Text is the normalized text payload.
	Text string
}

// Reply sends a text response into the originating chat, wrapping each
// line in the fixed quote template.
func (c *Context) Reply(ctx context.Context, text string) error {
	return c.Conn.SendText(ctx, c.Chat, FormatReply(text))
}

// FormatReply wraps every line of text in the quoted-monospace markup
// used for all command output.
func FormatReply(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "> _`" + line + "`_"
	}
	return strings.Join(lines, "\n")
}
