// Package autobehavior implements the passive per-account behaviors that
// run on every inbound event: reactions, status reads, first-contact
// welcomes, anti-delete replay and mention handling. Each behavior is an
// independent pipeline observer gated by the account's stored toggles.
package autobehavior

import (
	"context"

	"github.com/jholhewres/wamux/pkg/wamux/dispatch"
	"github.com/jholhewres/wamux/pkg/wamux/store"
)

// Settings is the slice of the store the behaviors read.
type Settings interface {
	UserConfig(accountID string) store.UserConfig
}

// AutoReact reacts to every incoming chat message with the account's
// configured emoji.
type AutoReact struct {
	settings Settings
}

// NewAutoReact builds the reaction behavior.
func NewAutoReact(settings Settings) *AutoReact {
	return &AutoReact{settings: settings}
}

func (a *AutoReact) Name() string { return "autoreact" }

func (a *AutoReact) OnMessage(ctx context.Context, evt dispatch.Event) error {
	msg := evt.Msg
	if msg.IsFromMe || msg.IsStatus {
		return nil
	}

	cfg := a.settings.UserConfig(evt.Conn.AccountID())
	if !cfg.AutoReact {
		return nil
	}
	emoji := cfg.ReactEmoji
	if emoji == "" {
		emoji = store.DefaultUserConfig().ReactEmoji
	}
	return evt.Conn.React(ctx, msg.Chat, msg.Sender, msg.ID, emoji)
}
