// Package session implements the account session lifecycle: the registry
// of live connections and the supervisor that owns connect, reconnect and
// teardown for every managed account.
package session

import (
	"sync"

	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// View is a read-only snapshot of one account session. Callers never see
// the live mutable entry, so there is nothing for them to race on.
type View struct {
	AccountID  string `json:"account_id"`
	Connected  bool   `json:"connected"`
	RetryCount int    `json:"retry_count"`
}

// entry is the live registry record. Only the supervisor mutates it, and
// always under the registry lock.
type entry struct {
	accountID  string
	conn       transport.Conn
	connected  bool
	retryCount int
}

// Registry maps account ids to their current connection. It is the single
// source of truth for "is this account live". All operations are
// idempotent with respect to missing account ids.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register stores a fresh session for accountID, replacing any previous
// entry wholesale. The new entry starts disconnected with retryCount 0.
func (r *Registry) Register(accountID string, conn transport.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[accountID] = &entry{accountID: accountID, conn: conn}
}

// Replace swaps the connection handle of an existing entry, keeping its
// retry counter. Returns false if the account is not registered: the
// caller abandoned it in the meantime and must not resurrect it.
func (r *Registry) Replace(accountID string, conn transport.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[accountID]
	if !ok {
		return false
	}
	e.conn = conn
	e.connected = false
	return true
}

// Lookup returns a snapshot of the session, or ok=false when absent.
func (r *Registry) Lookup(accountID string) (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[accountID]
	if !ok {
		return View{}, false
	}
	return e.view(), true
}

// Conn returns the live connection handle for an account, or ok=false
// when the account is absent or has no handle.
func (r *Registry) Conn(accountID string) (transport.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[accountID]
	if !ok || e.conn == nil {
		return nil, false
	}
	return e.conn, true
}

// MarkConnected records a successful open: connected=true, retryCount=0.
// No-op for unknown accounts.
func (r *Registry) MarkConnected(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[accountID]; ok {
		e.connected = true
		e.retryCount = 0
	}
}

// MarkDisconnected flips the connected flag off. No-op for unknown
// accounts.
func (r *Registry) MarkDisconnected(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[accountID]; ok {
		e.connected = false
	}
}

// BumpRetry increments the retry counter and returns the new value.
// Returns 0, false for unknown accounts.
func (r *Registry) BumpRetry(accountID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[accountID]
	if !ok {
		return 0, false
	}
	e.retryCount++
	return e.retryCount, true
}

// Remove deletes the entry and returns its connection handle so the
// caller can close it. Returns nil, false when the account was absent.
func (r *Registry) Remove(accountID string) (transport.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[accountID]
	if !ok {
		return nil, false
	}
	delete(r.entries, accountID)
	return e.conn, true
}

// Contains reports whether the account is currently registered.
func (r *Registry) Contains(accountID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[accountID]
	return ok
}

// ListAll returns snapshots of every registered session.
func (r *Registry) ListAll() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]View, 0, len(r.entries))
	for _, e := range r.entries {
		views = append(views, e.view())
	}
	return views
}

func (e *entry) view() View {
	return View{
		AccountID:  e.accountID,
		Connected:  e.connected,
		RetryCount: e.retryCount,
	}
}
