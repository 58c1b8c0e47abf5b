package dispatch

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// fakeConn records outbound calls. The tests only exercise SendText and
// the identity getters.
type sentText struct {
	to   string
	text string
}

type fakeConn struct {
	accountID string
	selfLID   string
	sent      []sentText
	reacted   []string
	read      [][]string
	events    chan transport.Event
}

func newFakeConn(accountID string) *fakeConn {
	return &fakeConn{accountID: accountID, events: make(chan transport.Event)}
}

func (f *fakeConn) AccountID() string { return f.accountID }

func (f *fakeConn) Events() <-chan transport.Event { return f.events }

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

func (f *fakeConn) SetStatusText(_ context.Context, _ string) error { return nil }

func (f *fakeConn) RequestPairingCode(_ context.Context) (string, error) { return "", nil }

func (f *fakeConn) SelfID() string { return f.accountID }

func (f *fakeConn) SelfLID() string { return f.selfLID }

func (f *fakeConn) LoggedIn() bool { return true }

func (f *fakeConn) Close() {}

func (f *fakeConn) Logout(_ context.Context) error { return nil }

// fakeSudo is a fixed sudo list; the first entry is the owner.
type fakeSudo struct {
	numbers []string
}

func (f *fakeSudo) IsSudo(number string) bool {
	for _, n := range f.numbers {
		if n == number {
			return true
		}
	}
	return false
}

func (f *fakeSudo) Owner() string {
	if len(f.numbers) == 0 {
		return ""
	}
	return f.numbers[0]
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestFormatReply(t *testing.T) {
	t.Run("single line", func(t *testing.T) {
		got := FormatReply("pong")
		if got != "> _`pong`_" {
			t.Fatalf("FormatReply = %q", got)
		}
	})

	t.Run("multi line wraps each line", func(t *testing.T) {
		got := FormatReply("a\nb")
		want := "> _`a`_\n> _`b`_"
		if got != want {
			t.Fatalf("FormatReply = %q, want %q", got, want)
		}
	})
}
