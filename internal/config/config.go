package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults for the Spotify endpoints and flow tuning. All of them can be
// overridden by the config file or environment.
const (
	DefaultAuthEndpoint    = "https://accounts.spotify.com/authorize"
	DefaultTokenEndpoint   = "https://accounts.spotify.com/api/token"
	DefaultProfileEndpoint = "https://api.spotify.com/v1/me"
	DefaultScope           = "user-read-private user-read-email"
	DefaultRedirectURI     = "http://127.0.0.1:8888/callback"
	DefaultExpiryBuffer    = 60 * time.Second
)

// defaultConfigDir is the per-user configuration directory, relative to the
// home directory.
const defaultConfigDir = ".config/songbattle"

// Config is the full application configuration.
type Config struct {
	Spotify SpotifyConfig `yaml:"spotify"`

	// StorageDir is where the durable credential store lives.
	// Defaults to ~/.config/songbattle.
	StorageDir string `yaml:"storageDir" env:"SONGBATTLE_STORAGE_DIR"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel" env:"SONGBATTLE_LOG_LEVEL"`
}

// SpotifyConfig holds the OAuth client settings for the provider.
type SpotifyConfig struct {
	// ClientID is the public OAuth client identifier. Required.
	ClientID string `yaml:"clientId" env:"SONGBATTLE_SPOTIFY_CLIENT_ID"`

	// RedirectURI is where the authorization server sends the user back.
	// Its path determines the callback route and its port the local
	// callback listener.
	RedirectURI string `yaml:"redirectUri" env:"SONGBATTLE_SPOTIFY_REDIRECT_URI"`

	// Scope is the space-delimited permission set requested at login.
	Scope string `yaml:"scope" env:"SONGBATTLE_SPOTIFY_SCOPE"`

	// AuthEndpoint is the authorization server's /authorize URL.
	AuthEndpoint string `yaml:"authEndpoint" env:"SONGBATTLE_SPOTIFY_AUTH_ENDPOINT"`

	// TokenEndpoint is the authorization server's token URL.
	TokenEndpoint string `yaml:"tokenEndpoint" env:"SONGBATTLE_SPOTIFY_TOKEN_ENDPOINT"`

	// ProfileEndpoint is the resource API's profile URL.
	ProfileEndpoint string `yaml:"profileEndpoint" env:"SONGBATTLE_SPOTIFY_PROFILE_ENDPOINT"`

	// ExpiryBuffer is how long before actual expiry a token is treated as
	// expired, so refresh happens before requests start failing.
	ExpiryBuffer time.Duration `yaml:"expiryBuffer" env:"SONGBATTLE_EXPIRY_BUFFER"`
}

// Load builds the configuration: defaults, then the YAML file at path (if it
// exists; an empty path means ~/.config/songbattle/config.yaml), then
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, defaultConfigDir, "config.yaml")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// defaults returns a config populated with built-in defaults.
func defaults() *Config {
	cfg := &Config{
		LogLevel: "info",
		Spotify: SpotifyConfig{
			RedirectURI:     DefaultRedirectURI,
			Scope:           DefaultScope,
			AuthEndpoint:    DefaultAuthEndpoint,
			TokenEndpoint:   DefaultTokenEndpoint,
			ProfileEndpoint: DefaultProfileEndpoint,
			ExpiryBuffer:    DefaultExpiryBuffer,
		},
	}

	if home, err := os.UserHomeDir(); err == nil {
		cfg.StorageDir = filepath.Join(home, defaultConfigDir)
	}

	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client id is not configured (set SONGBATTLE_SPOTIFY_CLIENT_ID)")
	}
	if _, err := url.Parse(c.Spotify.RedirectURI); err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage directory is not configured")
	}
	return nil
}

// TokenDBPath returns the path of the durable credential database.
func (c *Config) TokenDBPath() string {
	return filepath.Join(c.StorageDir, "tokens.db")
}
