// Package gateway provides the HTTP control surface: message injection
// into any live session, a landing page and a health endpoint.
package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jholhewres/wamux/pkg/wamux/session"
)

// Config holds the gateway settings.
type Config struct {
	// Address is the listen address, host:port.
	Address string `yaml:"address"`

	// AuthToken protects every endpoint except /health when non-empty.
	// Resolved via keyring and environment before the server starts,
	// see ResolveAuthToken.
	AuthToken string `yaml:"auth_token"`

	// CORSOrigins enables CORS for the listed origins ("*" allowed).
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultConfig returns the gateway defaults.
func DefaultConfig() Config {
	return Config{Address: ":8085"}
}

// Gateway is the HTTP server over the session registry.
type Gateway struct {
	registry  *session.Registry
	config    Config
	version   string
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a gateway bound to the registry.
func New(reg *session.Registry, cfg Config, version string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = DefaultConfig().Address
	}
	return &Gateway{
		registry: reg,
		config:   cfg,
		version:  version,
		logger:   logger.With("component", "gateway"),
	}
}

// Start starts the HTTP server.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/send", g.handleSend)
	mux.HandleFunc("/sessions", g.handleSessions)
	mux.HandleFunc("/", g.handleIndex)

	handler := g.securityHeadersMiddleware(g.corsMiddleware(g.authMiddleware(g.requestIDMiddleware(mux))))
	g.server = &http.Server{
		Addr:    g.config.Address,
		Handler: handler,
	}

	// Warn when there is no auth token and we are reachable beyond loopback.
	if g.config.AuthToken == "" {
		host, _, _ := net.SplitHostPort(g.config.Address)
		if host == "" {
			host = "0.0.0.0"
		}
		ip := net.ParseIP(host)
		isLoopback := ip != nil && ip.IsLoopback()
		if !isLoopback && host != "localhost" {
			g.logger.Warn("SECURITY: gateway has no auth token and is bound to a non-loopback address — anyone on the network can send messages",
				"address", g.config.Address)
		}
	}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", g.config.Address)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}
