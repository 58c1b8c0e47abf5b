// Package store persists the small operational records wamux keeps next
// to the credential databases: the bot mode, the sudo list and per-account
// behavior toggles. One JSON file per record, writes serialized under a
// single lock so no reader ever sees a partial write.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// Modes controlling who may invoke commands.
const (
	ModePrivate = "private"
	ModePublic  = "public"
)

// UserConfig holds the per-account auto-behavior toggles.
type UserConfig struct {
	AutoReact      bool   `json:"auto_react"`
	AutoReadStatus bool   `json:"auto_read_status"`
	AutoBio        bool   `json:"auto_bio"`
	Welcome        bool   `json:"welcome"`
	AntiDelete     bool   `json:"anti_delete"`
	ReactEmoji     string `json:"react_emoji,omitempty"`
}

// DefaultUserConfig returns the toggles applied to accounts that never
// saved a config.
func DefaultUserConfig() UserConfig {
	return UserConfig{
		AutoReadStatus: true,
		Welcome:        true,
		AntiDelete:     true,
		ReactEmoji:     "❤️",
	}
}

type modeRecord struct {
	Mode string `json:"mode"`
}

type configRecord struct {
	Users map[string]UserConfig `json:"users"`
}

// Store is the file-backed record store.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates a store rooted at dir, creating it when missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Mode returns the configured mode, defaulting to private.
func (s *Store) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec modeRecord
	if err := s.read("mode.json", &rec); err != nil || rec.Mode == "" {
		return ModePrivate
	}
	return rec.Mode
}

// SetMode persists a new mode.
func (s *Store) SetMode(mode string) error {
	if mode != ModePrivate && mode != ModePublic {
		return fmt.Errorf("unknown mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write("mode.json", modeRecord{Mode: mode})
}

// Sudo returns the configured sudo list, numbers only.
func (s *Store) Sudo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []string
	if err := s.read("sudo.json", &list); err != nil {
		return nil
	}
	return list
}

// IsSudo reports whether the bare number is in the sudo list.
func (s *Store) IsSudo(number string) bool {
	number = transport.BareNumber(number)
	return number != "" && slices.Contains(s.Sudo(), number)
}

// Owner returns the first sudo entry, the conventional owner slot.
func (s *Store) Owner() string {
	if list := s.Sudo(); len(list) > 0 {
		return list[0]
	}
	return ""
}

// AddSudo appends a bare number to the sudo list, de-duplicating.
func (s *Store) AddSudo(number string) error {
	number = transport.BareNumber(number)
	if number == "" {
		return fmt.Errorf("invalid sudo number")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var list []string
	_ = s.read("sudo.json", &list)
	if slices.Contains(list, number) {
		return nil
	}
	return s.write("sudo.json", append(list, number))
}

// RemoveSudo drops a number from the sudo list. Removing an absent
// number is a no-op.
func (s *Store) RemoveSudo(number string) error {
	number = transport.BareNumber(number)

	s.mu.Lock()
	defer s.mu.Unlock()

	var list []string
	_ = s.read("sudo.json", &list)
	filtered := slices.DeleteFunc(list, func(n string) bool { return n == number })
	return s.write("sudo.json", filtered)
}

// UserConfig returns the stored toggles for an account, or the defaults
// when the account never saved any.
func (s *Store) UserConfig(accountID string) UserConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.readConfig()
	if cfg, ok := rec.Users[transport.BareNumber(accountID)]; ok {
		return cfg
	}
	return DefaultUserConfig()
}

// SetUserConfig persists the toggles for an account.
func (s *Store) SetUserConfig(accountID string, cfg UserConfig) error {
	number := transport.BareNumber(accountID)
	if number == "" {
		return fmt.Errorf("invalid account id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.readConfig()
	rec.Users[number] = cfg
	return s.write("config.json", rec)
}

// Welcomed reports whether sender already received the welcome message
// from accountID.
func (s *Store) Welcomed(accountID, sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.readWelcomed()
	return slices.Contains(seen[transport.BareNumber(accountID)], transport.BareNumber(sender))
}

// MarkWelcomed records that sender received the welcome message.
func (s *Store) MarkWelcomed(accountID, sender string) error {
	account := transport.BareNumber(accountID)
	number := transport.BareNumber(sender)
	if account == "" || number == "" {
		return fmt.Errorf("invalid welcome pair %q/%q", accountID, sender)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.readWelcomed()
	if slices.Contains(seen[account], number) {
		return nil
	}
	seen[account] = append(seen[account], number)
	return s.write("welcomed.json", seen)
}

func (s *Store) readConfig() configRecord {
	rec := configRecord{Users: make(map[string]UserConfig)}
	_ = s.read("config.json", &rec)
	if rec.Users == nil {
		rec.Users = make(map[string]UserConfig)
	}
	return rec
}

func (s *Store) readWelcomed() map[string][]string {
	seen := make(map[string][]string)
	_ = s.read("welcomed.json", &seen)
	if seen == nil {
		seen = make(map[string][]string)
	}
	return seen
}

// read unmarshals one record file. A missing file is an error the caller
// treats as "use defaults".
func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// write marshals and replaces one record file atomically (write to a
// temp file, then rename).
func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}
