package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	if cfg.Server.WebsocketURL != "" {
		t.Fatalf("expected no websocket url without a base url, got %q", cfg.Server.WebsocketURL)
	}
}

func TestFillMissingDefaultsDerivesWebsocketURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"http://localhost:8080/", "ws://localhost:8080/ws"},
		{"https://eatup.example.com", "wss://eatup.example.com/ws"},
	}

	for _, tc := range cases {
		cfg := AppConfig{Server: ServerConfig{BaseURL: tc.base}}
		cfg.FillMissingDefaults()
		if cfg.Server.WebsocketURL != tc.want {
			t.Fatalf("base %q: expected websocket url %q, got %q", tc.base, tc.want, cfg.Server.WebsocketURL)
		}
	}
}

func TestFillMissingDefaultsKeepsExplicitWebsocketURL(t *testing.T) {
	cfg := AppConfig{Server: ServerConfig{
		BaseURL:      "http://localhost:8080",
		WebsocketURL: "ws://broker.internal/ws",
	}}
	cfg.FillMissingDefaults()

	if cfg.Server.WebsocketURL != "ws://broker.internal/ws" {
		t.Fatalf("explicit websocket url must be preserved, got %q", cfg.Server.WebsocketURL)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load missing config: %v", err)
	}
	if !cfg.Notifications.Enabled {
		t.Fatalf("expected notifications enabled by default")
	}
	if !cfg.Cache.Enabled {
		t.Fatalf("expected cache enabled by default")
	}
}

func TestLoadFillsOmittedSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "server": {
    "base_url": "http://localhost:8080"
  },
  "user": {
    "email": "me@example.com",
    "id": "me-id"
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected omitted log level to default to info, got %q", cfg.Logging.Level)
	}
	if cfg.Server.WebsocketURL != "ws://localhost:8080/ws" {
		t.Fatalf("expected derived websocket url, got %q", cfg.Server.WebsocketURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected filled config to validate: %v", err)
	}
}

func TestValidateRejectsIncompleteConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  AppConfig
	}{
		{"empty", AppConfig{}},
		{"missing email", AppConfig{Server: ServerConfig{BaseURL: "http://localhost:8080", WebsocketURL: "ws://localhost:8080/ws"}}},
		{"bad websocket scheme", AppConfig{
			Server: ServerConfig{BaseURL: "http://localhost:8080", WebsocketURL: "http://localhost:8080/ws"},
			User:   UserConfig{Email: "me@example.com"},
		}},
	}

	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Server.BaseURL = "http://localhost:8080"
	cfg.User.Email = "me@example.com"
	cfg.User.ID = "me-id"
	cfg.FillMissingDefaults()

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("round trip mismatch:\nsaved:  %+v\nloaded: %+v", cfg, loaded)
	}
}

func TestSaveRefusesInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, AppConfig{}); err == nil {
		t.Fatalf("expected save to refuse an invalid config")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("invalid config must not be written, stat err: %v", err)
	}
}

func TestTokenReadsEnvironment(t *testing.T) {
	t.Setenv(TokenEnvVar, "  secret-token \n")
	if got := Token(); got != "secret-token" {
		t.Fatalf("expected trimmed token, got %q", got)
	}

	t.Setenv(TokenEnvVar, "")
	if got := Token(); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
