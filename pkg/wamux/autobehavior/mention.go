package autobehavior

import (
	"context"
	"strings"

	"github.com/jholhewres/wamux/pkg/wamux/dispatch"
)

// Mention answers when the account's own number is @-mentioned in a
// group, so the person mentioning gets an immediate acknowledgement even
// while the owner is away.
type Mention struct {
	// Text replaces the default acknowledgement when non-empty.
	Text string
}

// NewMention builds the mention behavior.
func NewMention() *Mention {
	return &Mention{}
}

func (m *Mention) Name() string { return "mention" }

func (m *Mention) OnMessage(ctx context.Context, evt dispatch.Event) error {
	msg := evt.Msg
	if msg.IsFromMe || msg.IsStatus || !msg.IsGroup || !evt.HasText {
		return nil
	}

	self := evt.Conn.SelfID()
	if self == "" || !mentionsNumber(evt.Text, self) {
		return nil
	}

	text := m.Text
	if text == "" {
		text = "👋 I saw the mention. The owner of this number will get back to you."
	}
	return evt.Conn.SendText(ctx, msg.Chat, text)
}

// mentionsNumber reports whether text carries "@<number>" as a whole
// token. A longer number sharing the prefix does not match.
func mentionsNumber(text, number string) bool {
	needle := "@" + number
	for offset := 0; ; {
		i := strings.Index(text[offset:], needle)
		if i < 0 {
			return false
		}
		end := offset + i + len(needle)
		if end == len(text) || !isDigit(text[end]) {
			return true
		}
		offset = end
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
