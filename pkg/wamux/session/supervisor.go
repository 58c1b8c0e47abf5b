// Package session – supervisor.go owns the per-account reconnect state
// machine: open, observe, classify disconnects, schedule bounded retries,
// abandon terminal sessions.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// Policy holds the supervisor's retry and logout behavior.
type Policy struct {
	// MaxRetries caps reconnect attempts per disconnect streak.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the fixed wait before each reconnect attempt.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// DropCredentialsOnLogout deletes persisted credentials when the
	// server invalidates a session. Off by default so a later explicit
	// pairing can still try to reuse them.
	DropCredentialsOnLogout bool `yaml:"drop_credentials_on_logout"`
}

// DefaultPolicy returns the stock retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 5,
		RetryDelay: 5 * time.Second,
	}
}

// Terminal reasons reported to observers when a session leaves the
// registry for good.
const (
	ReasonLoggedOut        = "logged_out"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonClosed           = "closed"
)

// MessageSink receives inbound message events from every live session.
type MessageSink interface {
	HandleMessage(ctx context.Context, conn transport.Conn, msg transport.Message)
}

// TerminalFunc observes sessions leaving the registry permanently.
type TerminalFunc func(accountID, reason string)

// Supervisor drives the lifecycle of every account session. It is the
// only writer of registry entries; everyone else reads snapshots.
type Supervisor struct {
	transport transport.Transport
	registry  *Registry
	policy    Policy
	sink      MessageSink
	logger    *slog.Logger

	ctx context.Context

	terminalMu sync.Mutex
	onTerminal []TerminalFunc
}

// NewSupervisor wires a supervisor to its transport and registry.
func NewSupervisor(t transport.Transport, reg *Registry, policy Policy, sink MessageSink, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 5
	}
	if policy.RetryDelay <= 0 {
		policy.RetryDelay = 5 * time.Second
	}
	return &Supervisor{
		transport: t,
		registry:  reg,
		policy:    policy,
		sink:      sink,
		logger:    logger.With("component", "supervisor"),
		ctx:       context.Background(),
	}
}

// Registry exposes the supervised registry for read-side consumers.
func (s *Supervisor) Registry() *Registry { return s.registry }

// SetContext sets the base context used for delayed reconnects and
// message handling. Must be called before StartAccount.
func (s *Supervisor) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// AddTerminalObserver registers a callback for terminal session removal.
func (s *Supervisor) AddTerminalObserver(fn TerminalFunc) {
	s.terminalMu.Lock()
	defer s.terminalMu.Unlock()
	s.onTerminal = append(s.onTerminal, fn)
}

// StartAccount opens a connection for accountID and begins supervising
// it. Any existing registry entry, connected or mid-reconnect, makes
// this a no-op: registering over a live entry would leak its connection
// and leave two pumps racing on the same account.
func (s *Supervisor) StartAccount(ctx context.Context, accountID string) error {
	accountID = transport.BareNumber(accountID)
	if accountID == "" {
		return fmt.Errorf("start: empty account id")
	}

	if s.registry.Contains(accountID) {
		s.logger.Info("session already supervised", "account", accountID)
		return nil
	}

	conn, err := s.transport.Open(ctx, accountID)
	if err != nil {
		return fmt.Errorf("opening session for %s: %w", accountID, err)
	}

	s.registry.Register(accountID, conn)
	go s.pump(conn)

	s.logger.Info("session started", "account", accountID, "paired", conn.LoggedIn())
	return nil
}

// Pair opens a connection for a possibly unregistered device and, when
// the device has no stored credentials, requests a pairing code. The
// session is supervised either way; the empty code means credentials
// already existed and no pairing is required.
func (s *Supervisor) Pair(ctx context.Context, accountID string) (string, error) {
	accountID = transport.BareNumber(accountID)
	if accountID == "" {
		return "", fmt.Errorf("pair: empty account id")
	}

	if s.registry.Contains(accountID) {
		return "", fmt.Errorf("account %s already has a supervised session", accountID)
	}

	conn, err := s.transport.Open(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("opening session for %s: %w", accountID, err)
	}

	var code string
	if !conn.LoggedIn() {
		code, err = conn.RequestPairingCode(ctx)
		if err != nil {
			conn.Close()
			return "", err
		}
	}

	s.registry.Register(accountID, conn)
	go s.pump(conn)
	return code, nil
}

// StartAll boots every account with persisted credentials. Accounts start
// concurrently; one account failing only logs and skips that account.
func (s *Supervisor) StartAll(ctx context.Context) error {
	accounts, err := s.transport.KnownAccounts()
	if err != nil {
		return fmt.Errorf("listing known accounts: %w", err)
	}
	if len(accounts) == 0 {
		s.logger.Info("no persisted sessions found")
		return nil
	}

	s.logger.Info("starting persisted sessions", "count", len(accounts))

	g, ctx := errgroup.WithContext(ctx)
	for _, accountID := range accounts {
		g.Go(func() error {
			if err := s.StartAccount(ctx, accountID); err != nil {
				s.logger.Error("failed to start session", "account", accountID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// CloseAccount removes a session explicitly. With logout=true the session
// is invalidated server-side as well.
func (s *Supervisor) CloseAccount(ctx context.Context, accountID string, logout bool) error {
	accountID = transport.BareNumber(accountID)
	conn, ok := s.registry.Remove(accountID)
	if !ok {
		return fmt.Errorf("no session for %s", accountID)
	}
	if conn != nil {
		if logout {
			if err := conn.Logout(ctx); err != nil {
				s.logger.Warn("logout failed", "account", accountID, "error", err)
			}
		} else {
			conn.Close()
		}
	}
	s.notifyTerminal(accountID, ReasonClosed)
	s.logger.Info("session closed", "account", accountID, "logout", logout)
	return nil
}

// Shutdown closes every session without logging out, so credentials stay
// valid for the next boot.
func (s *Supervisor) Shutdown(ctx context.Context) {
	for _, view := range s.registry.ListAll() {
		if conn, ok := s.registry.Remove(view.AccountID); ok && conn != nil {
			conn.Close()
		}
	}
	s.logger.Info("all sessions closed")
}

// pump consumes one connection's event stream until it closes.
func (s *Supervisor) pump(conn transport.Conn) {
	accountID := conn.AccountID()
	for evt := range conn.Events() {
		switch evt := evt.(type) {
		case transport.Connected:
			s.registry.MarkConnected(accountID)
			s.logger.Info("session connected", "account", accountID)

		case transport.PairSuccess:
			s.logger.Info("device paired", "account", accountID,
				"jid", evt.JID, "platform", evt.Platform)

		case transport.Disconnected:
			s.handleClose(conn, evt)
			return

		case transport.Message:
			s.dispatch(conn, evt)
		}
	}
}

// dispatch hands one message to the sink as an independent task so a slow
// handler never stalls the account's event stream.
func (s *Supervisor) dispatch(conn transport.Conn, msg transport.Message) {
	if s.sink == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("message handler panic",
					"account", conn.AccountID(), "panic", r)
			}
		}()
		s.sink.HandleMessage(s.ctx, conn, msg)
	}()
}

// handleClose classifies a disconnect and decides retry vs give-up.
func (s *Supervisor) handleClose(conn transport.Conn, evt transport.Disconnected) {
	accountID := conn.AccountID()
	s.registry.MarkDisconnected(accountID)
	conn.Close()

	if evt.LoggedOut {
		s.logger.Error("session logged out", "account", accountID, "reason", evt.Reason)
		s.abandon(accountID, ReasonLoggedOut)
		return
	}

	view, ok := s.registry.Lookup(accountID)
	if !ok {
		// Removed concurrently by an explicit close; nothing to do.
		return
	}

	if view.RetryCount >= s.policy.MaxRetries {
		s.logger.Error("max reconnect attempts reached",
			"account", accountID, "attempts", view.RetryCount)
		s.abandon(accountID, ReasonRetriesExhausted)
		return
	}

	attempt, ok := s.registry.BumpRetry(accountID)
	if !ok {
		return
	}

	s.logger.Warn("session disconnected, scheduling reconnect",
		"account", accountID,
		"reason", evt.Reason,
		"attempt", attempt,
		"max", s.policy.MaxRetries,
		"delay", s.policy.RetryDelay)

	time.AfterFunc(s.policy.RetryDelay, func() {
		s.retry(accountID)
	})
}

// retry performs one delayed reconnect attempt. The registry membership
// check keeps a stale timer from resurrecting a removed session.
func (s *Supervisor) retry(accountID string) {
	if !s.registry.Contains(accountID) {
		s.logger.Debug("reconnect cancelled, session removed", "account", accountID)
		return
	}
	if s.ctx.Err() != nil {
		return
	}

	conn, err := s.transport.Open(s.ctx, accountID)
	if err != nil {
		s.logger.Warn("reconnect attempt failed", "account", accountID, "error", err)

		view, ok := s.registry.Lookup(accountID)
		if !ok {
			return
		}
		if view.RetryCount >= s.policy.MaxRetries {
			s.logger.Error("max reconnect attempts reached",
				"account", accountID, "attempts", view.RetryCount)
			s.abandon(accountID, ReasonRetriesExhausted)
			return
		}
		if attempt, ok := s.registry.BumpRetry(accountID); ok {
			s.logger.Warn("scheduling reconnect",
				"account", accountID, "attempt", attempt, "delay", s.policy.RetryDelay)
			time.AfterFunc(s.policy.RetryDelay, func() {
				s.retry(accountID)
			})
		}
		return
	}

	if !s.registry.Replace(accountID, conn) {
		// Session was removed while we were connecting.
		conn.Close()
		return
	}
	go s.pump(conn)
}

// abandon removes a session permanently and notifies observers.
// Persisted credentials survive unless the logout policy says otherwise.
func (s *Supervisor) abandon(accountID, reason string) {
	if conn, ok := s.registry.Remove(accountID); ok && conn != nil {
		conn.Close()
	}

	if reason == ReasonLoggedOut && s.policy.DropCredentialsOnLogout {
		if err := s.transport.DropCredentials(accountID); err != nil {
			s.logger.Error("failed to drop credentials", "account", accountID, "error", err)
		}
	}

	s.notifyTerminal(accountID, reason)
}

func (s *Supervisor) notifyTerminal(accountID, reason string) {
	s.terminalMu.Lock()
	observers := make([]TerminalFunc, len(s.onTerminal))
	copy(observers, s.onTerminal)
	s.terminalMu.Unlock()

	for _, fn := range observers {
		fn(accountID, reason)
	}
}
