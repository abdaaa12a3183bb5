package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// TokenEnvVar names the environment variable carrying the bearer token.
// Tokens are never written into the config file.
const TokenEnvVar = "EATUP_TOKEN"

// ServerConfig points at the backend: the REST base and the realtime
// websocket endpoint.
type ServerConfig struct {
	BaseURL      string `json:"base_url"`
	WebsocketURL string `json:"websocket_url"`
}

// UserConfig identifies the signed-in user. The id is the backend's opaque
// identifier and is needed to suppress self-authored notifications.
type UserConfig struct {
	Email string `json:"email"`
	ID    string `json:"id"`
}

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	Enabled bool `json:"enabled"`
}

// CacheConfig controls the local sqlite message cache.
type CacheConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Server        ServerConfig       `json:"server"`
	User          UserConfig         `json:"user"`
	Logging       LoggingConfig      `json:"logging"`
	Notifications NotificationConfig `json:"notifications"`
	Cache         CacheConfig        `json:"cache"`
}

func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			BaseURL:      "",
			WebsocketURL: "",
		},
		User: UserConfig{},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Notifications: NotificationConfig{
			Enabled: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "",
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.WebsocketURL == "" {
		c.Server.WebsocketURL = deriveWebsocketURL(c.Server.BaseURL)
	}
}

// deriveWebsocketURL turns the REST base into the backend's /ws endpoint
// when no explicit websocket address was configured.
func deriveWebsocketURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(trimmed, "https://"):
		trimmed = "wss://" + strings.TrimPrefix(trimmed, "https://")
	case strings.HasPrefix(trimmed, "http://"):
		trimmed = "ws://" + strings.TrimPrefix(trimmed, "http://")
	}

	return trimmed + "/ws"
}

func (c AppConfig) Validate() error {
	base := strings.TrimSpace(c.Server.BaseURL)
	if base == "" {
		return errors.New("server base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return fmt.Errorf("invalid server base url: %w", err)
	}
	ws := strings.TrimSpace(c.Server.WebsocketURL)
	if ws == "" {
		return errors.New("websocket url is required")
	}
	if !strings.HasPrefix(ws, "ws://") && !strings.HasPrefix(ws, "wss://") {
		return fmt.Errorf("websocket url must use ws or wss scheme: %s", ws)
	}
	if strings.TrimSpace(c.User.Email) == "" {
		return errors.New("user email is required")
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}

// Token reads the session bearer token from the environment. An empty value
// means the realtime and REST subsystems must stay offline.
func Token() string {
	return strings.TrimSpace(os.Getenv(TokenEnvVar))
}
