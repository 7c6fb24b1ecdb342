package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultAuthEndpoint, cfg.Spotify.AuthEndpoint)
	assert.Equal(t, DefaultTokenEndpoint, cfg.Spotify.TokenEndpoint)
	assert.Equal(t, DefaultProfileEndpoint, cfg.Spotify.ProfileEndpoint)
	assert.Equal(t, DefaultScope, cfg.Spotify.Scope)
	assert.Equal(t, DefaultExpiryBuffer, cfg.Spotify.ExpiryBuffer)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
spotify:
  clientId: file-client-id
  scope: user-read-private
logLevel: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-client-id", cfg.Spotify.ClientID)
	assert.Equal(t, "user-read-private", cfg.Spotify.Scope)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched values keep their defaults.
	assert.Equal(t, DefaultTokenEndpoint, cfg.Spotify.TokenEndpoint)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spotify:\n  clientId: from-file\n"), 0o600))

	t.Setenv("SONGBATTLE_SPOTIFY_CLIENT_ID", "from-env")
	t.Setenv("SONGBATTLE_EXPIRY_BUFFER", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Spotify.ClientID)
	assert.Equal(t, 30*time.Second, cfg.Spotify.ExpiryBuffer)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spotify: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.StorageDir = t.TempDir()

	err := cfg.Validate()
	require.Error(t, err, "client id is required")

	cfg.Spotify.ClientID = "client-id"
	assert.NoError(t, cfg.Validate())
}

func TestTokenDBPath(t *testing.T) {
	cfg := &Config{StorageDir: "/tmp/songbattle"}
	assert.Equal(t, filepath.Join("/tmp/songbattle", "tokens.db"), cfg.TokenDBPath())
}
