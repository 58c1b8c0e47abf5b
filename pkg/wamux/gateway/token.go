// Package gateway – token.go resolves the gateway auth token.
//
// Priority for resolving the token:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. Environment variable (WAMUX_GATEWAY_TOKEN, also via .env)
//  3. config.yaml value (least secure — plaintext on disk)
package gateway

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "wamux"

	// keyringTokenKey is the key name for the gateway token.
	keyringTokenKey = "gateway_token"

	// tokenEnvVar overrides the config token when set.
	tokenEnvVar = "WAMUX_GATEWAY_TOKEN"
)

// StoreToken saves the gateway token to the OS keyring.
func StoreToken(value string) error {
	return keyring.Set(keyringService, keyringTokenKey, value)
}

// DeleteToken removes the gateway token from the OS keyring.
func DeleteToken() error {
	return keyring.Delete(keyringService, keyringTokenKey)
}

// ResolveAuthToken resolves the token using the priority chain and
// updates the config in place. An empty result means the gateway runs
// unauthenticated.
func ResolveAuthToken(cfg *Config, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if val, err := keyring.Get(keyringService, keyringTokenKey); err == nil && val != "" {
		cfg.AuthToken = val
		logger.Debug("gateway token loaded from OS keyring")
		return
	}

	if val := os.Getenv(tokenEnvVar); val != "" {
		cfg.AuthToken = val
		logger.Debug("gateway token loaded from environment")
		return
	}

	if cfg.AuthToken != "" {
		logger.Debug("gateway token loaded from config")
	}
}
