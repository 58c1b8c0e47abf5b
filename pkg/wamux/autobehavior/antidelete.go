package autobehavior

import (
	"context"
	"fmt"
	"sync"

	"github.com/jholhewres/wamux/pkg/wamux/dispatch"
	"github.com/jholhewres/wamux/pkg/wamux/store"
	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// AntiDeleteStore is the store slice the anti-delete behavior needs.
type AntiDeleteStore interface {
	UserConfig(accountID string) store.UserConfig
	Owner() string
}

// defaultCacheSize bounds the per-process text cache. Old entries are
// evicted in arrival order.
const defaultCacheSize = 512

type cachedMessage struct {
	sender   string
	pushName string
	chat     string
	text     string
}

// AntiDelete keeps a bounded cache of recent message texts and, when a
// sender revokes one, forwards the cached copy to the owner number. Only
// text that passed through the cache can be replayed; a revoke for an
// unseen message is ignored.
type AntiDelete struct {
	store AntiDeleteStore

	mu    sync.Mutex
	cache map[string]cachedMessage
	order []string
	limit int
}

// NewAntiDelete builds the behavior with the default cache size.
func NewAntiDelete(st AntiDeleteStore) *AntiDelete {
	return &AntiDelete{
		store: st,
		cache: make(map[string]cachedMessage),
		limit: defaultCacheSize,
	}
}

func (a *AntiDelete) Name() string { return "antidelete" }

func (a *AntiDelete) OnMessage(ctx context.Context, evt dispatch.Event) error {
	msg := evt.Msg
	accountID := evt.Conn.AccountID()

	if revokedID := transport.RevokedMessageID(msg.Raw); revokedID != "" {
		if msg.IsFromMe {
			return nil
		}
		if !a.store.UserConfig(accountID).AntiDelete {
			return nil
		}
		return a.replay(ctx, evt, accountID, revokedID)
	}

	if msg.IsFromMe || msg.IsStatus || !evt.HasText {
		return nil
	}
	a.remember(accountID, msg.Chat, msg.ID, cachedMessage{
		sender:   msg.Sender,
		pushName: msg.PushName,
		chat:     msg.Chat,
		text:     evt.Text,
	})
	return nil
}

func (a *AntiDelete) replay(ctx context.Context, evt dispatch.Event, accountID, revokedID string) error {
	cached, ok := a.take(accountID, evt.Msg.Chat, revokedID)
	if !ok {
		return nil
	}

	owner := a.store.Owner()
	if owner == "" {
		return nil
	}

	who := cached.pushName
	if who == "" {
		who = transport.BareNumber(cached.sender)
	}
	report := fmt.Sprintf("🗑️ deleted message on %s\nfrom: %s (%s)\nchat: %s\n\n%s",
		accountID, who, transport.BareNumber(cached.sender), cached.chat, cached.text)
	return evt.Conn.SendText(ctx, owner, report)
}

func (a *AntiDelete) remember(accountID, chat, id string, m cachedMessage) {
	key := cacheKey(accountID, chat, id)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.cache[key]; !exists {
		a.order = append(a.order, key)
	}
	a.cache[key] = m
	for len(a.order) > a.limit {
		delete(a.cache, a.order[0])
		a.order = a.order[1:]
	}
}

func (a *AntiDelete) take(accountID, chat, id string) (cachedMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.cache[cacheKey(accountID, chat, id)]
	return m, ok
}

func cacheKey(accountID, chat, id string) string {
	return accountID + "|" + chat + "|" + id
}
