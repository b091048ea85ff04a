// Package config loads ~/.collab/config.toml and applies COLLAB_* environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is the global configuration file.
type Config struct {
	DefaultProfile string `toml:"default_profile" env:"COLLAB_DEFAULT_PROFILE"`
	LogLevel       string `toml:"log_level"       env:"COLLAB_LOG_LEVEL"`
	Server         Server `toml:"server"`
	Client         Client `toml:"client"`
}

// Server configures collabd.
type Server struct {
	ListenAddr        string        `toml:"listen_addr"         env:"COLLAB_SERVER_LISTEN_ADDR"`
	JWTSecret         string        `toml:"jwt_secret"          env:"COLLAB_SERVER_JWT_SECRET"`
	TokenTTL          time.Duration `toml:"token_ttl"           env:"COLLAB_SERVER_TOKEN_TTL"`
	DevTokens         bool          `toml:"dev_tokens"          env:"COLLAB_SERVER_DEV_TOKENS"`
	NATSURL           string        `toml:"nats_url"            env:"COLLAB_SERVER_NATS_URL"`
	NATSSubject       string        `toml:"nats_subject"        env:"COLLAB_SERVER_NATS_SUBJECT"`
	NATSToken         string        `toml:"nats_token"          env:"COLLAB_SERVER_NATS_TOKEN"`
	AllowedOrigins    []string      `toml:"allowed_origins"     env:"COLLAB_SERVER_ALLOWED_ORIGINS" envSeparator:","`
	RateLimitRequests int           `toml:"rate_limit_requests" env:"COLLAB_SERVER_RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `toml:"rate_limit_window"   env:"COLLAB_SERVER_RATE_LIMIT_WINDOW"`
	HistoryLimit      int           `toml:"history_limit"       env:"COLLAB_SERVER_HISTORY_LIMIT"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout"    env:"COLLAB_SERVER_SHUTDOWN_TIMEOUT"`
}

// Client configures collabtui and collabctl.
type Client struct {
	ServerURL         string        `toml:"server_url"         env:"COLLAB_CLIENT_SERVER_URL"`
	UserID            string        `toml:"user_id"            env:"COLLAB_CLIENT_USER_ID"`
	Token             string        `toml:"token"              env:"COLLAB_CLIENT_TOKEN"`
	TypingIdle        time.Duration `toml:"typing_idle"        env:"COLLAB_CLIENT_TYPING_IDLE"`
	RequestTimeout    time.Duration `toml:"request_timeout"    env:"COLLAB_CLIENT_REQUEST_TIMEOUT"`
	ReconnectInitial  time.Duration `toml:"reconnect_initial"  env:"COLLAB_CLIENT_RECONNECT_INITIAL"`
	ReconnectMax      time.Duration `toml:"reconnect_max"      env:"COLLAB_CLIENT_RECONNECT_MAX"`
	ReconnectAttempts uint64        `toml:"reconnect_attempts" env:"COLLAB_CLIENT_RECONNECT_ATTEMPTS"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: Server{
			ListenAddr:        "127.0.0.1:8080",
			TokenTTL:          12 * time.Hour,
			NATSSubject:       "collab.deliver",
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
			HistoryLimit:      500,
			ShutdownTimeout:   10 * time.Second,
		},
		Client: Client{
			ServerURL:         "http://127.0.0.1:8080",
			TypingIdle:        time.Second,
			RequestTimeout:    10 * time.Second,
			ReconnectInitial:  500 * time.Millisecond,
			ReconnectMax:      30 * time.Second,
			ReconnectAttempts: 10,
		},
	}
}

// Load reads config from the given path. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve loads path if it exists, falls back to Default otherwise, and
// applies environment overrides.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks the server settings collabd cannot start without.
func (s Server) Validate() error {
	if s.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if len(s.JWTSecret) < 16 {
		return errors.New("server.jwt_secret must be at least 16 characters")
	}
	return nil
}

// WebSocketURL derives the realtime endpoint from ServerURL.
func (c Client) WebSocketURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("client.server_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("client.server_url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
