package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8089", cfg.Server.WebSocketAddress)
	assert.Equal(t, "LIFO", cfg.Game.ResolutionMode)
	assert.Equal(t, 100, cfg.Game.ResolutionLimit)
	assert.Equal(t, 256, cfg.Game.HistorySize)
	assert.Equal(t, "arcana", cfg.Game.Mode)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "LIFO", cfg.Game.ResolutionMode)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  websocket_address: ":9000"
game:
  resolution_mode: PRIORITY
  resolution_limit: 50
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.WebSocketAddress)
	assert.Equal(t, "PRIORITY", cfg.Game.ResolutionMode)
	assert.Equal(t, 50, cfg.Game.ResolutionLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 256, cfg.Game.HistorySize)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  resolution_mode: SIDEWAYS\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("game:\n  resolution_limit: -1\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
