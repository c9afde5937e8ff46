package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "ENVIRONMENT", "ALLOWED_ORIGIN", "SOCKET_TOKEN_SECRET", "SOCKET_TOKEN_TTL"} {
		// Setenv restores the original value on cleanup; Unsetenv then
		// clears it for the duration of this test.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "http://localhost:5000", cfg.AllowedOrigin)
	assert.Empty(t, cfg.SocketSecret)
	assert.Equal(t, int64(24*60*60), cfg.SocketTokenTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ALLOWED_ORIGIN", "https://portal.example.com")
	t.Setenv("SOCKET_TOKEN_SECRET", "s3cret")
	t.Setenv("SOCKET_TOKEN_TTL", "3600")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "https://portal.example.com", cfg.AllowedOrigin)
	assert.Equal(t, "s3cret", cfg.SocketSecret)
	assert.Equal(t, int64(3600), cfg.SocketTokenTTL)
}

func TestLoadIgnoresMalformedTTL(t *testing.T) {
	t.Setenv("SOCKET_TOKEN_TTL", "not-a-number")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, int64(24*60*60), cfg.SocketTokenTTL)
}
