// Package transport – whatsmeow.go implements the Transport capability
// over whatsmeow, a native Go WhatsApp Web API library. Credentials are
// persisted in one SQLite store per account under the sessions root.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	waCommon "go.mau.fi/whatsmeow/proto/waCommon"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the credential store.
)

// Config holds whatsmeow transport configuration.
type Config struct {
	// SessionsDir is the root directory holding one credential database
	// per account (SessionsDir/<number>/creds.db).
	SessionsDir string `yaml:"sessions_dir"`

	// DeviceName is shown in the WhatsApp linked devices list.
	DeviceName string `yaml:"device_name"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionsDir: "./sessions",
		DeviceName:  "wamux",
	}
}

// Whatsmeow implements Transport.
type Whatsmeow struct {
	cfg    Config
	logger *slog.Logger
}

// NewWhatsmeow creates the whatsmeow-backed transport.
func NewWhatsmeow(cfg Config, logger *slog.Logger) *Whatsmeow {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = "./sessions"
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "wamux"
	}
	return &Whatsmeow{
		cfg:    cfg,
		logger: logger.With("component", "transport"),
	}
}

// Open restores or creates the credential store for accountID and starts
// a connection. The Connected event arrives asynchronously on the
// returned Conn's event stream once the server accepts the session.
func (t *Whatsmeow) Open(ctx context.Context, accountID string) (Conn, error) {
	number := BareNumber(accountID)
	if number == "" {
		return nil, fmt.Errorf("open: invalid account id %q", accountID)
	}

	dir := filepath.Join(t.cfg.SessionsDir, number)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}

	dbPath := filepath.Join(dir, "creds.db")
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("creating credential store: %w", err)
	}

	device, err := t.getDevice(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("getting device: %w", err)
	}

	store.SetOSInfo(t.cfg.DeviceName, [3]uint32{1, 0, 0})

	logger := t.logger.With("account", number)
	c := &meowConn{
		accountID: number,
		client:    whatsmeow.NewClient(device, waLog.Noop),
		events:    newEventSink(256, logger),
		logger:    logger,
	}
	c.client.AddEventHandler(c.handleEvent)

	// The session supervisor owns the retry policy; whatsmeow's built-in
	// reconnect loop would fight it.
	c.client.EnableAutoReconnect = false

	if err := c.client.Connect(); err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}

	return c, nil
}

// KnownAccounts lists digit-named credential directories under the
// sessions root.
func (t *Whatsmeow) KnownAccounts() ([]string, error) {
	entries, err := os.ReadDir(t.cfg.SessionsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sessions dir: %w", err)
	}

	var accounts []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name != "" && name == BareNumber(name) {
			accounts = append(accounts, name)
		}
	}
	return accounts, nil
}

// DropCredentials deletes the account's credential directory.
func (t *Whatsmeow) DropCredentials(accountID string) error {
	number := BareNumber(accountID)
	if number == "" {
		return fmt.Errorf("drop credentials: invalid account id %q", accountID)
	}
	return os.RemoveAll(filepath.Join(t.cfg.SessionsDir, number))
}

// getDevice retrieves the stored device or creates a fresh one.
func (t *Whatsmeow) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// eventSink is the fan-in between whatsmeow's handler goroutine and the
// supervisor pump. The mutex makes sends and close mutually exclusive,
// so a late handler callback can never hit a closed channel.
type eventSink struct {
	ch     chan Event
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newEventSink(size int, logger *slog.Logger) *eventSink {
	return &eventSink{ch: make(chan Event, size), logger: logger}
}

// emit delivers an event without ever blocking the caller. A full buffer
// drops message events, but connection-state events evict the oldest
// buffered event instead: losing a Disconnected would strand the session
// without supervision.
func (s *eventSink) emit(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
		return
	default:
	}
	if _, ok := evt.(Message); ok {
		s.logger.Warn("event buffer full, dropping message event")
		return
	}
	select {
	case dropped := <-s.ch:
		s.logger.Warn("event buffer full, evicting oldest event",
			"evicted", fmt.Sprintf("%T", dropped))
	default:
	}
	// The mutex makes this the only sender, so there is a free slot.
	s.ch <- evt
}

func (s *eventSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// meowConn is one live whatsmeow connection.
type meowConn struct {
	accountID string
	client    *whatsmeow.Client
	events    *eventSink
	logger    *slog.Logger
}

func (c *meowConn) AccountID() string { return c.accountID }

func (c *meowConn) Events() <-chan Event { return c.events.ch }

func (c *meowConn) LoggedIn() bool {
	return c.client.Store.ID != nil
}

func (c *meowConn) SelfID() string {
	if id := c.client.Store.ID; id != nil {
		return BareNumber(id.User)
	}
	return ""
}

func (c *meowConn) SelfLID() string {
	if lid := c.client.Store.LID; !lid.IsEmpty() {
		return BareNumber(lid.User)
	}
	return ""
}

func (c *meowConn) SendText(ctx context.Context, to, text string) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func (c *meowConn) React(ctx context.Context, chat, sender, messageID, emoji string) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	chatJID, err := parseJID(chat)
	if err != nil {
		return err
	}
	key := &waCommon.MessageKey{
		RemoteJID: proto.String(chatJID.String()),
		FromMe:    proto.Bool(false),
		ID:        proto.String(messageID),
	}
	if sender != "" && sender != chat {
		if senderJID, err := parseJID(sender); err == nil {
			key.Participant = proto.String(senderJID.String())
		}
	}
	_, err = c.client.SendMessage(ctx, chatJID, &waE2E.Message{
		ReactionMessage: &waE2E.ReactionMessage{
			Key:               key,
			Text:              proto.String(emoji),
			SenderTimestampMS: proto.Int64(time.Now().UnixMilli()),
		},
	})
	return err
}

func (c *meowConn) MarkRead(ctx context.Context, chat, sender string, messageIDs []string) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	chatJID, err := parseJID(chat)
	if err != nil {
		return err
	}
	senderJID := chatJID
	if sender != "" {
		if j, err := parseJID(sender); err == nil {
			senderJID = j
		}
	}
	ids := make([]types.MessageID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = types.MessageID(id)
	}
	return c.client.MarkRead(ctx, ids, time.Now(), chatJID, senderJID)
}

func (c *meowConn) GroupMetadata(ctx context.Context, chat string) (*GroupInfo, error) {
	jid, err := parseJID(chat)
	if err != nil {
		return nil, err
	}
	info, err := c.client.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("fetching group metadata: %w", err)
	}
	out := &GroupInfo{Subject: info.Name}
	for _, p := range info.Participants {
		out.Participants = append(out.Participants, p.JID.String())
	}
	return out, nil
}

func (c *meowConn) SetStatusText(ctx context.Context, text string) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	return c.client.SetStatusMessage(ctx, text)
}

func (c *meowConn) RequestPairingCode(ctx context.Context) (string, error) {
	if c.LoggedIn() {
		return "", fmt.Errorf("account %s is already paired", c.accountID)
	}
	code, err := c.client.PairPhone(ctx, c.accountID, true,
		whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return "", fmt.Errorf("requesting pairing code: %w", err)
	}
	return code, nil
}

func (c *meowConn) Close() {
	c.client.Disconnect()
	c.events.close()
}

func (c *meowConn) Logout(ctx context.Context) error {
	err := c.client.Logout(ctx)
	if err != nil {
		// Force local cleanup; the server may already consider us gone.
		c.logger.Warn("logout error, forcing disconnect", "error", err)
	}
	c.Close()
	return err
}

// handleEvent converts whatsmeow events into transport events.
func (c *meowConn) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		c.emit(Connected{})

	case *events.Disconnected:
		c.emit(Disconnected{Reason: "connection_lost"})

	case *events.StreamReplaced:
		c.emit(Disconnected{Reason: "stream_replaced"})

	case *events.LoggedOut:
		c.emit(Disconnected{LoggedOut: true, Reason: evt.Reason.String()})

	case *events.ConnectFailure:
		c.emit(Disconnected{
			LoggedOut: evt.Reason.IsLoggedOut(),
			Reason:    evt.Reason.String(),
		})

	case *events.TemporaryBan:
		c.emit(Disconnected{Reason: "temporary_ban: " + evt.Code.String()})

	case *events.PairSuccess:
		c.emit(PairSuccess{
			JID:      evt.ID.String(),
			Platform: evt.Platform,
		})

	case *events.Message:
		c.handleMessageEvt(evt)
	}
}

// handleMessageEvt converts one inbound message event.
func (c *meowConn) handleMessageEvt(evt *events.Message) {
	msg := Message{
		ID:        string(evt.Info.ID),
		Chat:      evt.Info.Chat.String(),
		Sender:    evt.Info.Sender.String(),
		IsGroup:   evt.Info.IsGroup,
		IsFromMe:  evt.Info.IsFromMe,
		IsStatus:  evt.Info.Chat.Server == "broadcast",
		PushName:  evt.Info.PushName,
		Timestamp: evt.Info.Timestamp,
		Raw:       evt.Message,
	}
	if !evt.Info.SenderAlt.IsEmpty() {
		msg.SenderAlt = evt.Info.SenderAlt.String()
	}
	c.emit(msg)
}

func (c *meowConn) emit(evt Event) { c.events.emit(evt) }

// parseJID converts a string JID or bare phone number to types.JID.
// Accepts "5511999999999", "5511999999999@s.whatsapp.net" and group ids
// like "123456789-1234@g.us".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := BareNumber(s)
	if len(digits) < 7 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
