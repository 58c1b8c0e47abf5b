package autobehavior

import (
	"context"
	"fmt"

	"github.com/jholhewres/wamux/pkg/wamux/dispatch"
	"github.com/jholhewres/wamux/pkg/wamux/store"
	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// WelcomeStore is the store slice the welcome behavior needs.
type WelcomeStore interface {
	UserConfig(accountID string) store.UserConfig
	Welcomed(accountID, sender string) bool
	MarkWelcomed(accountID, sender string) error
}

// Welcome greets a contact the first time they write to an account in a
// direct chat. Each contact is greeted once per account, tracked in the
// store so restarts do not re-greet.
type Welcome struct {
	store WelcomeStore

	// Text overrides the default greeting when non-empty. The verb
	// %s, when present, receives the contact's push name.
	Text string
}

// NewWelcome builds the first-contact behavior.
func NewWelcome(st WelcomeStore) *Welcome {
	return &Welcome{store: st}
}

func (w *Welcome) Name() string { return "welcome" }

func (w *Welcome) OnMessage(ctx context.Context, evt dispatch.Event) error {
	msg := evt.Msg
	if msg.IsFromMe || msg.IsStatus || msg.IsGroup {
		return nil
	}

	accountID := evt.Conn.AccountID()
	if !w.store.UserConfig(accountID).Welcome {
		return nil
	}

	sender := transport.BareNumber(msg.Sender)
	if sender == "" || w.store.Welcomed(accountID, sender) {
		return nil
	}

	if err := evt.Conn.SendText(ctx, msg.Chat, w.greeting(msg.PushName)); err != nil {
		return err
	}
	return w.store.MarkWelcomed(accountID, sender)
}

func (w *Welcome) greeting(pushName string) string {
	text := w.Text
	if text == "" {
		text = "Hi %s! 👋 This number is assisted by an automated agent. A human will follow up soon."
	}
	name := pushName
	if name == "" {
		name = "there"
	}
	if !containsVerb(text) {
		return text
	}
	return fmt.Sprintf(text, name)
}

func containsVerb(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '%' && s[i+1] == 's' {
			return true
		}
	}
	return false
}
