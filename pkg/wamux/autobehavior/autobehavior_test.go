package autobehavior

import (
	"context"
	"strings"
	"testing"

	waCommon "go.mau.fi/whatsmeow/proto/waCommon"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/jholhewres/wamux/pkg/wamux/dispatch"
	"github.com/jholhewres/wamux/pkg/wamux/store"
	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

type sentText struct {
	to   string
	text string
}

type fakeConn struct {
	accountID string
	selfID    string
	sent      []sentText
	reacted   []string
	read      [][]string
	status    []string
}

func (f *fakeConn) AccountID() string { return f.accountID }

func (f *fakeConn) Events() <-chan transport.Event { return nil }

func (f *fakeConn) SendText(_ context.Context, to, text string) error {
	f.sent = append(f.sent, sentText{to: to, text: text})
	return nil
}

func (f *fakeConn) React(_ context.Context, _, _, messageID, emoji string) error {
	f.reacted = append(f.reacted, messageID+":"+emoji)
	return nil
}

func (f *fakeConn) MarkRead(_ context.Context, _, _ string, ids []string) error {
	f.read = append(f.read, ids)
	return nil
}

func (f *fakeConn) GroupMetadata(_ context.Context, _ string) (*transport.GroupInfo, error) {
	return &transport.GroupInfo{}, nil
}

func (f *fakeConn) SetStatusText(_ context.Context, text string) error {
	f.status = append(f.status, text)
	return nil
}

func (f *fakeConn) RequestPairingCode(_ context.Context) (string, error) { return "", nil }

func (f *fakeConn) SelfID() string { return f.selfID }

func (f *fakeConn) SelfLID() string { return "" }

func (f *fakeConn) LoggedIn() bool { return true }

func (f *fakeConn) Close() {}

func (f *fakeConn) Logout(_ context.Context) error { return nil }

// fakeSettings serves per-account configs with store defaults for
// accounts it does not know.
type fakeSettings struct {
	configs map[string]store.UserConfig
	owner   string
}

func (f *fakeSettings) UserConfig(accountID string) store.UserConfig {
	if cfg, ok := f.configs[accountID]; ok {
		return cfg
	}
	return store.DefaultUserConfig()
}

func (f *fakeSettings) Owner() string { return f.owner }

func (f *fakeSettings) Welcomed(_, _ string) bool { return false }

func (f *fakeSettings) MarkWelcomed(_, _ string) error { return nil }

func textEvent(conn *fakeConn, msg transport.Message, text string) dispatch.Event {
	msg.Raw = &waE2E.Message{Conversation: proto.String(text)}
	return dispatch.Event{Conn: conn, Msg: msg, Text: text, HasText: true}
}

func TestAutoReact(t *testing.T) {
	t.Run("reacts with the configured emoji", func(t *testing.T) {
		settings := &fakeSettings{configs: map[string]store.UserConfig{
			"111": {AutoReact: true, ReactEmoji: "🔥"},
		}}
		conn := &fakeConn{accountID: "111"}
		a := NewAutoReact(settings)

		evt := textEvent(conn, transport.Message{ID: "M1", Chat: "222@s.whatsapp.net", Sender: "222@s.whatsapp.net"}, "hey")
		if err := a.OnMessage(context.Background(), evt); err != nil {
			t.Fatal(err)
		}
		if len(conn.reacted) != 1 || conn.reacted[0] != "M1:🔥" {
			t.Fatalf("reacted = %v", conn.reacted)
		}
	})

	t.Run("disabled by default", func(t *testing.T) {
		conn := &fakeConn{accountID: "111"}
		a := NewAutoReact(&fakeSettings{})
		evt := textEvent(conn, transport.Message{ID: "M1", Chat: "222@s.whatsapp.net"}, "hey")
		if err := a.OnMessage(context.Background(), evt); err != nil {
			t.Fatal(err)
		}
		if len(conn.reacted) != 0 {
			t.Fatalf("reacted = %v", conn.reacted)
		}
	})

	t.Run("skips own messages and status posts", func(t *testing.T) {
		settings := &fakeSettings{configs: map[string]store.UserConfig{"111": {AutoReact: true}}}
		conn := &fakeConn{accountID: "111"}
		a := NewAutoReact(settings)

		for _, msg := range []transport.Message{
			{ID: "M1", IsFromMe: true},
			{ID: "M2", IsStatus: true},
		} {
			if err := a.OnMessage(context.Background(), textEvent(conn, msg, "x")); err != nil {
				t.Fatal(err)
			}
		}
		if len(conn.reacted) != 0 {
			t.Fatalf("reacted = %v", conn.reacted)
		}
	})

	t.Run("empty emoji falls back to the default", func(t *testing.T) {
		settings := &fakeSettings{configs: map[string]store.UserConfig{"111": {AutoReact: true}}}
		conn := &fakeConn{accountID: "111"}
		a := NewAutoReact(settings)
		evt := textEvent(conn, transport.Message{ID: "M1", Chat: "222@s.whatsapp.net"}, "hey")
		if err := a.OnMessage(context.Background(), evt); err != nil {
			t.Fatal(err)
		}
		want := "M1:" + store.DefaultUserConfig().ReactEmoji
		if len(conn.reacted) != 1 || conn.reacted[0] != want {
			t.Fatalf("reacted = %v, want %q", conn.reacted, want)
		}
	})
}

func TestStatusReader(t *testing.T) {
	t.Run("marks status read and reacts", func(t *testing.T) {
		conn := &fakeConn{accountID: "111"}
		s := NewStatusReader(&fakeSettings{})

		msg := transport.Message{ID: "S1", Chat: "status@broadcast", Sender: "222@s.whatsapp.net", IsStatus: true}
		if err := s.OnMessage(context.Background(), textEvent(conn, msg, "my status")); err != nil {
			t.Fatal(err)
		}
		if len(conn.read) != 1 || conn.read[0][0] != "S1" {
			t.Fatalf("read = %v", conn.read)
		}
		if len(conn.reacted) != 1 {
			t.Fatalf("reacted = %v", conn.reacted)
		}
	})

	t.Run("ignores regular chat messages", func(t *testing.T) {
		conn := &fakeConn{accountID: "111"}
		s := NewStatusReader(&fakeSettings{})
		if err := s.OnMessage(context.Background(), textEvent(conn, transport.Message{ID: "M1"}, "hi")); err != nil {
			t.Fatal(err)
		}
		if len(conn.read) != 0 {
			t.Fatalf("read = %v", conn.read)
		}
	})

	t.Run("toggle off disables it", func(t *testing.T) {
		settings := &fakeSettings{configs: map[string]store.UserConfig{"111": {AutoReadStatus: false}}}
		conn := &fakeConn{accountID: "111"}
		s := NewStatusReader(settings)
		msg := transport.Message{ID: "S1", IsStatus: true}
		if err := s.OnMessage(context.Background(), textEvent(conn, msg, "x")); err != nil {
			t.Fatal(err)
		}
		if len(conn.read) != 0 {
			t.Fatalf("read = %v", conn.read)
		}
	})
}

func TestWelcome(t *testing.T) {
	newStore := func(t *testing.T) *store.Store {
		t.Helper()
		st, err := store.New(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		return st
	}

	t.Run("greets a first-time contact once", func(t *testing.T) {
		st := newStore(t)
		conn := &fakeConn{accountID: "111"}
		w := NewWelcome(st)

		msg := transport.Message{ID: "M1", Chat: "222@s.whatsapp.net", Sender: "222@s.whatsapp.net", PushName: "Ada"}
		for i := 0; i < 2; i++ {
			if err := w.OnMessage(context.Background(), textEvent(conn, msg, "hello")); err != nil {
				t.Fatal(err)
			}
		}

		if len(conn.sent) != 1 {
			t.Fatalf("sent %d greetings, want 1", len(conn.sent))
		}
		if !strings.Contains(conn.sent[0].text, "Ada") {
			t.Fatalf("greeting = %q", conn.sent[0].text)
		}
	})

	t.Run("greeting state is per account", func(t *testing.T) {
		st := newStore(t)
		w := NewWelcome(st)
		msg := transport.Message{ID: "M1", Chat: "222@s.whatsapp.net", Sender: "222@s.whatsapp.net"}

		first := &fakeConn{accountID: "111"}
		second := &fakeConn{accountID: "999"}
		for _, conn := range []*fakeConn{first, second} {
			if err := w.OnMessage(context.Background(), textEvent(conn, msg, "hello")); err != nil {
				t.Fatal(err)
			}
		}
		if len(first.sent) != 1 || len(second.sent) != 1 {
			t.Fatalf("sent = %v / %v", first.sent, second.sent)
		}
	})

	t.Run("skips groups, own messages and status", func(t *testing.T) {
		st := newStore(t)
		conn := &fakeConn{accountID: "111"}
		w := NewWelcome(st)

		for _, msg := range []transport.Message{
			{ID: "M1", Sender: "222@s.whatsapp.net", IsGroup: true},
			{ID: "M2", Sender: "222@s.whatsapp.net", IsFromMe: true},
			{ID: "M3", Sender: "222@s.whatsapp.net", IsStatus: true},
		} {
			if err := w.OnMessage(context.Background(), textEvent(conn, msg, "x")); err != nil {
				t.Fatal(err)
			}
		}
		if len(conn.sent) != 0 {
			t.Fatalf("sent = %v", conn.sent)
		}
	})

	t.Run("custom text without verb is sent as-is", func(t *testing.T) {
		st := newStore(t)
		conn := &fakeConn{accountID: "111"}
		w := NewWelcome(st)
		w.Text = "Welcome aboard."

		msg := transport.Message{ID: "M1", Chat: "222@s.whatsapp.net", Sender: "222@s.whatsapp.net"}
		if err := w.OnMessage(context.Background(), textEvent(conn, msg, "hi")); err != nil {
			t.Fatal(err)
		}
		if conn.sent[0].text != "Welcome aboard." {
			t.Fatalf("greeting = %q", conn.sent[0].text)
		}
	})
}

func revokeEvent(conn *fakeConn, chat, sender, revokedID string) dispatch.Event {
	msg := transport.Message{
		ID:     "REV-" + revokedID,
		Chat:   chat,
		Sender: sender,
		Raw: &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
			Type: waE2E.ProtocolMessage_REVOKE.Enum(),
			Key: &waCommon.MessageKey{
				RemoteJID: proto.String(chat),
				ID:        proto.String(revokedID),
			},
		}},
	}
	return dispatch.Event{Conn: conn, Msg: msg}
}

func TestAntiDelete(t *testing.T) {
	settings := &fakeSettings{owner: "237650000001"}

	t.Run("replays a deleted message to the owner", func(t *testing.T) {
		conn := &fakeConn{accountID: "111"}
		a := NewAntiDelete(settings)

		msg := transport.Message{ID: "M1", Chat: "222@s.whatsapp.net", Sender: "222@s.whatsapp.net", PushName: "Ada"}
		if err := a.OnMessage(context.Background(), textEvent(conn, msg, "secret plans")); err != nil {
			t.Fatal(err)
		}
		if err := a.OnMessage(context.Background(), revokeEvent(conn, "222@s.whatsapp.net", "222@s.whatsapp.net", "M1")); err != nil {
			t.Fatal(err)
		}

		if len(conn.sent) != 1 {
			t.Fatalf("sent = %v", conn.sent)
		}
		if conn.sent[0].to != "237650000001" {
			t.Fatalf("report went to %q", conn.sent[0].to)
		}
		for _, want := range []string{"secret plans", "Ada"} {
			if !strings.Contains(conn.sent[0].text, want) {
				t.Fatalf("report missing %q: %q", want, conn.sent[0].text)
			}
		}
	})

	t.Run("revoke for an unseen message is ignored", func(t *testing.T) {
		conn := &fakeConn{accountID: "111"}
		a := NewAntiDelete(settings)
		if err := a.OnMessage(context.Background(), revokeEvent(conn, "222@s.whatsapp.net", "222@s.whatsapp.net", "GHOST")); err != nil {
			t.Fatal(err)
		}
		if len(conn.sent) != 0 {
			t.Fatalf("sent = %v", conn.sent)
		}
	})

	t.Run("own revokes are not reported", func(t *testing.T) {
		conn := &fakeConn{accountID: "111"}
		a := NewAntiDelete(settings)
		msg := transport.Message{ID: "M1", Chat: "222@s.whatsapp.net", Sender: "111@s.whatsapp.net"}
		if err := a.OnMessage(context.Background(), textEvent(conn, msg, "draft")); err != nil {
			t.Fatal(err)
		}
		rev := revokeEvent(conn, "222@s.whatsapp.net", "111@s.whatsapp.net", "M1")
		rev.Msg.IsFromMe = true
		if err := a.OnMessage(context.Background(), rev); err != nil {
			t.Fatal(err)
		}
		if len(conn.sent) != 0 {
			t.Fatalf("sent = %v", conn.sent)
		}
	})

	t.Run("toggle off disables the replay", func(t *testing.T) {
		off := &fakeSettings{
			owner:   "237650000001",
			configs: map[string]store.UserConfig{"111": {AntiDelete: false}},
		}
		conn := &fakeConn{accountID: "111"}
		a := NewAntiDelete(off)
		msg := transport.Message{ID: "M1", Chat: "222@s.whatsapp.net", Sender: "222@s.whatsapp.net"}
		if err := a.OnMessage(context.Background(), textEvent(conn, msg, "gone")); err != nil {
			t.Fatal(err)
		}
		if err := a.OnMessage(context.Background(), revokeEvent(conn, "222@s.whatsapp.net", "222@s.whatsapp.net", "M1")); err != nil {
			t.Fatal(err)
		}
		if len(conn.sent) != 0 {
			t.Fatalf("sent = %v", conn.sent)
		}
	})

	t.Run("cache evicts oldest entries", func(t *testing.T) {
		conn := &fakeConn{accountID: "111"}
		a := NewAntiDelete(settings)
		a.limit = 2

		for _, id := range []string{"M1", "M2", "M3"} {
			msg := transport.Message{ID: id, Chat: "222@s.whatsapp.net", Sender: "222@s.whatsapp.net"}
			if err := a.OnMessage(context.Background(), textEvent(conn, msg, "text "+id)); err != nil {
				t.Fatal(err)
			}
		}

		if err := a.OnMessage(context.Background(), revokeEvent(conn, "222@s.whatsapp.net", "222@s.whatsapp.net", "M1")); err != nil {
			t.Fatal(err)
		}
		if len(conn.sent) != 0 {
			t.Fatal("evicted entry must not be replayable")
		}
		if err := a.OnMessage(context.Background(), revokeEvent(conn, "222@s.whatsapp.net", "222@s.whatsapp.net", "M3")); err != nil {
			t.Fatal(err)
		}
		if len(conn.sent) != 1 {
			t.Fatal("retained entry should be replayable")
		}
	})
}

func TestMention(t *testing.T) {
	newEvent := func(conn *fakeConn, text string) dispatch.Event {
		msg := transport.Message{ID: "M1", Chat: "grp@g.us", Sender: "222@s.whatsapp.net", IsGroup: true}
		return textEvent(conn, msg, text)
	}

	t.Run("answers when the own number is mentioned", func(t *testing.T) {
		conn := &fakeConn{accountID: "111", selfID: "237650000001"}
		m := NewMention()
		if err := m.OnMessage(context.Background(), newEvent(conn, "ping @237650000001 are you there")); err != nil {
			t.Fatal(err)
		}
		if len(conn.sent) != 1 {
			t.Fatalf("sent = %v", conn.sent)
		}
	})

	t.Run("ignores mentions of longer numbers sharing the prefix", func(t *testing.T) {
		conn := &fakeConn{accountID: "111", selfID: "23765"}
		m := NewMention()
		if err := m.OnMessage(context.Background(), newEvent(conn, "hi @237650000001")); err != nil {
			t.Fatal(err)
		}
		if len(conn.sent) != 0 {
			t.Fatalf("sent = %v", conn.sent)
		}
	})

	t.Run("direct chats are ignored", func(t *testing.T) {
		conn := &fakeConn{accountID: "111", selfID: "237650000001"}
		m := NewMention()
		msg := transport.Message{ID: "M1", Chat: "222@s.whatsapp.net", Sender: "222@s.whatsapp.net"}
		if err := m.OnMessage(context.Background(), textEvent(conn, msg, "@237650000001")); err != nil {
			t.Fatal(err)
		}
		if len(conn.sent) != 0 {
			t.Fatalf("sent = %v", conn.sent)
		}
	})

	t.Run("custom text is used", func(t *testing.T) {
		conn := &fakeConn{accountID: "111", selfID: "42"}
		m := NewMention()
		m.Text = "on my way"
		if err := m.OnMessage(context.Background(), newEvent(conn, "@42")); err != nil {
			t.Fatal(err)
		}
		if conn.sent[0].text != "on my way" {
			t.Fatalf("sent = %v", conn.sent)
		}
	})
}
