package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "player", cfg.Username)
	assert.Equal(t, 3, cfg.TotalRounds)
	assert.Equal(t, 51515, cfg.ServerPort)
	assert.Equal(t, 12121, cfg.BroadcastPort)
	assert.Equal(t, 5*time.Second, cfg.DiscoveryTimeout)
	assert.Equal(t, 3*time.Second, cfg.CloseGrace)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	assert.Equal(t, 3, cfg.DesiredTotalRounds())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RPSLAN_USERNAME", "alice")
	t.Setenv("RPSLAN_TOTAL_ROUNDS", "7")
	t.Setenv("RPSLAN_CONNECT_TIMEOUT", "250ms")
	t.Setenv("RPSLAN_DEV", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, 7, cfg.TotalRounds)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectTimeout)
	assert.True(t, cfg.Dev)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RPSLAN_BROADCAST_PORT=40000\nRPSLAN_USERNAME=fromfile\n"), 0o600))
	// Registers a restore; godotenv only fills unset variables.
	t.Setenv("RPSLAN_BROADCAST_PORT", "")
	require.NoError(t, os.Unsetenv("RPSLAN_BROADCAST_PORT"))
	t.Setenv("RPSLAN_USERNAME", "fromenv")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 40000, cfg.BroadcastPort)
	assert.Equal(t, "fromenv", cfg.Username)
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty username", func(c *Config) { c.Username = "" }},
		{"comma in username", func(c *Config) { c.Username = "a,b" }},
		{"zero rounds", func(c *Config) { c.TotalRounds = 0 }},
		{"too many rounds", func(c *Config) { c.TotalRounds = 100 }},
		{"server port", func(c *Config) { c.ServerPort = 70000 }},
		{"broadcast port", func(c *Config) { c.BroadcastPort = -1 }},
		{"ephemeral server port", func(c *Config) { c.ServerPort = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger("loud", false)
	require.Error(t, err)
}
