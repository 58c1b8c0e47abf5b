package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Run("empty input keeps defaults", func(t *testing.T) {
		cfg, err := Parse(nil)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Session.MaxRetries != 5 || cfg.Session.RetryDelay != 5*time.Second {
			t.Fatalf("session policy = %+v", cfg.Session)
		}
		if cfg.Behavior.CommandPrefix != "." {
			t.Fatalf("prefix = %q", cfg.Behavior.CommandPrefix)
		}
		if cfg.Gateway.Address != ":8085" {
			t.Fatalf("gateway address = %q", cfg.Gateway.Address)
		}
	})

	t.Run("yaml overrides defaults section-wise", func(t *testing.T) {
		cfg, err := Parse([]byte(`
log:
  level: debug
session:
  max_retries: 3
  retry_delay: 2s
behavior:
  command_prefix: "!"
`))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Log.Level != "debug" {
			t.Fatalf("log level = %q", cfg.Log.Level)
		}
		if cfg.Session.MaxRetries != 3 || cfg.Session.RetryDelay != 2*time.Second {
			t.Fatalf("session policy = %+v", cfg.Session)
		}
		if cfg.Behavior.CommandPrefix != "!" {
			t.Fatalf("prefix = %q", cfg.Behavior.CommandPrefix)
		}
		if cfg.Transport.DeviceName != "wamux" {
			t.Fatalf("untouched section changed: %+v", cfg.Transport)
		}
	})

	t.Run("invalid yaml errors", func(t *testing.T) {
		if _, err := Parse([]byte("log: [")); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestLoadFromFile(t *testing.T) {
	t.Run("expands env vars", func(t *testing.T) {
		t.Setenv("WAMUX_TEST_TOKEN", "from-env")
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := "gateway:\n  auth_token: ${WAMUX_TEST_TOKEN}\n  address: \"${WAMUX_TEST_ADDR:-:9090}\"\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadFromFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Gateway.AuthToken != "from-env" {
			t.Fatalf("auth token = %q", cfg.Gateway.AuthToken)
		}
		if cfg.Gateway.Address != ":9090" {
			t.Fatalf("address = %q", cfg.Gateway.Address)
		}
	})

	t.Run("relative paths anchor at the config dir", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte("transport:\n  sessions_dir: sessions\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadFromFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(dir, "sessions"); cfg.Transport.SessionsDir != want {
			t.Fatalf("sessions dir = %q, want %q", cfg.Transport.SessionsDir, want)
		}
		if want := filepath.Join(dir, "data"); cfg.StoreDir != want {
			t.Fatalf("store dir = %q, want %q", cfg.StoreDir, want)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("WAMUX_SET", "value")
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"${WAMUX_SET}", "value"},
		{"${WAMUX_UNSET_XYZ}", "${WAMUX_UNSET_XYZ}"},
		{"${WAMUX_UNSET_XYZ:-fallback}", "fallback"},
		{"${WAMUX_SET:-fallback}", "value"},
	}
	for _, tc := range cases {
		if got := expandEnvVars(tc.in); got != tc.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
