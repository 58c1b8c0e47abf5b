// Package config loads the wamux YAML configuration with .env support
// and environment variable expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/wamux/pkg/wamux/gateway"
	"github.com/jholhewres/wamux/pkg/wamux/session"
	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// LogConfig controls the slog setup.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// BehaviorConfig holds the global auto-behavior settings. Per-account
// toggles live in the store; these shape the behaviors themselves.
type BehaviorConfig struct {
	// CommandPrefix invokes commands, "." by default.
	CommandPrefix string `yaml:"command_prefix"`

	// WelcomeText overrides the default first-contact greeting.
	WelcomeText string `yaml:"welcome_text"`

	// MentionText overrides the default mention acknowledgement.
	MentionText string `yaml:"mention_text"`

	// BioSchedule is the cron expression driving auto-bio refreshes.
	BioSchedule string `yaml:"bio_schedule"`
}

// Config is the full daemon configuration.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Transport transport.Config `yaml:"transport"`
	Session   session.Policy   `yaml:"session"`
	Gateway   gateway.Config   `yaml:"gateway"`
	Behavior  BehaviorConfig   `yaml:"behavior"`

	// StoreDir holds the mode/sudo/config JSON records.
	StoreDir string `yaml:"store_dir"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Transport: transport.DefaultConfig(),
		Session:   session.DefaultPolicy(),
		Gateway:   gateway.DefaultConfig(),
		Behavior:  BehaviorConfig{CommandPrefix: "."},
		StoreDir:  "./data",
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadFromFile reads and parses a YAML configuration file. .env files
// are loaded first (never overwriting existing env vars), then ${VAR}
// references in the YAML are expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse([]byte(expandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}
	resolveRelativePaths(cfg, path)
	return cfg, nil
}

// Parse parses YAML bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if cfg.Behavior.CommandPrefix == "" {
		cfg.Behavior.CommandPrefix = "."
	}
	return cfg, nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"wamux.yaml",
		"wamux.yml",
		"configs/wamux.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadEnvFiles loads .env files from standard locations.
// godotenv.Load does NOT overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} references with
// environment values. Unset variables without a default keep their
// placeholder.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, def := sub[1], sub[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if strings.Contains(match, ":-") {
			return def
		}
		return match
	})
}

// resolveRelativePaths anchors relative paths at the config file's
// directory so startup does not depend on the working directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	dir := filepath.Dir(configPath)
	cfg.Transport.SessionsDir = resolvePath(cfg.Transport.SessionsDir, dir)
	cfg.StoreDir = resolvePath(cfg.StoreDir, dir)
}

func resolvePath(path, configDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}
