package autobehavior

import (
	"context"

	"github.com/jholhewres/wamux/pkg/wamux/dispatch"
	"github.com/jholhewres/wamux/pkg/wamux/store"
)

// StatusReader marks contacts' status posts as read and reacts to them,
// so the contact sees the account as an engaged viewer.
type StatusReader struct {
	settings Settings
}

// NewStatusReader builds the status behavior.
func NewStatusReader(settings Settings) *StatusReader {
	return &StatusReader{settings: settings}
}

func (s *StatusReader) Name() string { return "autoread" }

func (s *StatusReader) OnMessage(ctx context.Context, evt dispatch.Event) error {
	msg := evt.Msg
	if !msg.IsStatus || msg.IsFromMe {
		return nil
	}

	cfg := s.settings.UserConfig(evt.Conn.AccountID())
	if !cfg.AutoReadStatus {
		return nil
	}

	if err := evt.Conn.MarkRead(ctx, msg.Chat, msg.Sender, []string{msg.ID}); err != nil {
		return err
	}
	emoji := cfg.ReactEmoji
	if emoji == "" {
		emoji = store.DefaultUserConfig().ReactEmoji
	}
	return evt.Conn.React(ctx, msg.Chat, msg.Sender, msg.ID, emoji)
}
