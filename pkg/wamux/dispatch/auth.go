// Package dispatch – auth.go decides whether a sender may invoke
// commands. Failing the gate is a silent no-op for the command path; the
// event stays visible to auto-behaviors.
package dispatch

import (
	"strings"

	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// SudoList is the slice of the store the gate needs.
type SudoList interface {
	IsSudo(number string) bool
	Owner() string
}

// Gate authorizes command invocation.
type Gate struct {
	sudo SudoList

	// mode returns the current bot mode; in public mode everyone may
	// invoke commands.
	mode func() string
}

// NewGate builds the authorization gate. mode may be nil, which pins the
// gate to private behavior.
func NewGate(sudo SudoList, mode func() string) *Gate {
	return &Gate{sudo: sudo, mode: mode}
}

// Allow reports whether the message's sender may invoke commands on the
// session owning selfLID. Authorized iff one of:
//   - the message came from the account's own outgoing stream,
//   - the bot runs in public mode,
//   - the sender's bare number is in the sudo list,
//   - the sender's linked identity matches the session's own.
func (g *Gate) Allow(msg transport.Message, selfLID string) bool {
	if msg.IsFromMe {
		return true
	}
	if g.mode != nil && g.mode() == "public" {
		return true
	}

	number := transport.BareNumber(msg.Sender)
	if number == "" {
		number = transport.BareNumber(msg.Chat)
	}
	if number != "" && g.sudo != nil && g.sudo.IsSudo(number) {
		return true
	}

	return matchesLinkedIdentity(msg, selfLID)
}

// IsOwner reports whether the sender is the configured owner (the first
// sudo entry).
func (g *Gate) IsOwner(sender string) bool {
	if g.sudo == nil {
		return false
	}
	owner := g.sudo.Owner()
	return owner != "" && transport.BareNumber(sender) == owner
}

// matchesLinkedIdentity compares the sender's @lid identity against the
// session's own linked identity.
func matchesLinkedIdentity(msg transport.Message, selfLID string) bool {
	if selfLID == "" {
		return false
	}
	for _, id := range []string{msg.Sender, msg.SenderAlt, msg.Chat} {
		if strings.HasSuffix(id, "@lid") && transport.BareNumber(id) == selfLID {
			return true
		}
	}
	return false
}
