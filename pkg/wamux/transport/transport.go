// Package transport defines the capability interface wamux uses to talk to
// the WhatsApp wire protocol, plus the whatsmeow-backed implementation.
// The rest of the system only consumes these types; it never touches
// protocol internals directly.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
)

// Event is a typed event emitted by a Conn. Consumers switch on the
// concrete type the same way whatsmeow handlers do.
type Event interface {
	transportEvent()
}

// Connected signals that the connection is open and authenticated.
type Connected struct{}

// Disconnected signals that the connection closed.
type Disconnected struct {
	// LoggedOut is true when the server invalidated the session. A
	// logged-out close is terminal; reconnecting is pointless until the
	// account is paired again.
	LoggedOut bool

	// Reason is a short human-readable close cause for logging.
	Reason string
}

// PairSuccess signals that a pairing code was accepted on the phone.
type PairSuccess struct {
	JID      string
	Platform string
}

// Message is one inbound message envelope.
type Message struct {
	// ID is the message identifier in the chat.
	ID string

	// Chat is the conversation JID (user or group).
	Chat string

	// Sender is the author JID. Equals Chat in direct chats.
	Sender string

	// SenderAlt is the sender's alternate identity (LID form) when the
	// transport delivered one, otherwise empty.
	SenderAlt string

	IsGroup  bool
	IsFromMe bool

	// IsStatus is true for status broadcast posts.
	IsStatus bool

	PushName  string
	Timestamp time.Time

	// Raw is the undecoded message payload. The normalizer and the
	// auto-behaviors operate on this directly.
	Raw *waE2E.Message
}

func (Connected) transportEvent()    {}
func (Disconnected) transportEvent() {}
func (PairSuccess) transportEvent()  {}
func (Message) transportEvent()      {}

// GroupInfo is the subset of group metadata the core needs.
type GroupInfo struct {
	Subject      string
	Participants []string
}

// Conn is one live connection for one account. A Conn is owned by the
// session supervisor; other components reach it through the registry.
type Conn interface {
	// AccountID returns the digits-only phone identifier this connection
	// was opened for.
	AccountID() string

	// Events returns the stream of connection and message events. The
	// channel is closed when the connection shuts down.
	Events() <-chan Event

	// SendText sends a plain text message to a chat JID or bare number.
	SendText(ctx context.Context, to, text string) error

	// React sends an emoji reaction to a message.
	React(ctx context.Context, chat, sender, messageID, emoji string) error

	// MarkRead marks messages in a chat as read.
	MarkRead(ctx context.Context, chat, sender string, messageIDs []string) error

	// GroupMetadata fetches the subject and participant list of a group.
	GroupMetadata(ctx context.Context, chat string) (*GroupInfo, error)

	// SetStatusText updates the account's "about" text.
	SetStatusText(ctx context.Context, text string) error

	// RequestPairingCode asks the server for a pairing code for this
	// account. Only meaningful while the device is not yet registered.
	RequestPairingCode(ctx context.Context) (string, error)

	// SelfID returns the account's own bare number once known.
	SelfID() string

	// SelfLID returns the account's linked identity (bare user part of
	// the @lid JID), or empty if the transport never assigned one.
	SelfLID() string

	// LoggedIn reports whether stored credentials exist for this device.
	LoggedIn() bool

	// Close tears the connection down without touching credentials.
	Close()

	// Logout invalidates the session server-side and closes.
	Logout(ctx context.Context) error
}

// Transport opens connections and owns credential persistence. One
// credential record lives under the sessions root per account id.
type Transport interface {
	// Open restores credentials for accountID (creating a fresh record
	// when none exist) and starts a connection. The returned Conn emits
	// Connected once the server accepts the session.
	Open(ctx context.Context, accountID string) (Conn, error)

	// KnownAccounts lists account ids with persisted credentials.
	KnownAccounts() ([]string, error)

	// DropCredentials deletes the persisted credential record for an
	// account. Used only when the logout policy says to forget sessions.
	DropCredentials(accountID string) error
}

// Sentinel errors shared by transport implementations.
var (
	ErrNotConnected = fmt.Errorf("transport: connection is not open")
	ErrNotPaired    = fmt.Errorf("transport: device is not paired")
)

// BareNumber reduces any JID-ish identifier to its digits-only phone
// form: everything after "@" and ":" is dropped, then non-digits are
// stripped. Returns "" for empty input.
func BareNumber(id string) string {
	if id == "" {
		return ""
	}
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon >= 0 {
		id = id[:colon]
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, id)
}
