package notekit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "badger", cfg.Backend)
	assert.Equal(t, 30, cfg.Sync.FetchTimeoutSeconds)
	assert.Equal(t, 3, cfg.Sync.RetryAttempts)
	assert.Equal(t, 50, cfg.Search.Limit)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend = "sqlite"

[sqlite]
path = "notes.db"

[sync]
remote_url = "https://example.com/api"
interval_seconds = 60
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, "notes.db", cfg.SQLite.Path)
	assert.Equal(t, "https://example.com/api", cfg.Sync.RemoteURL)
	assert.Equal(t, 60, cfg.Sync.IntervalSeconds)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, CreateConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "badger", cfg.Backend)

	// A backend switch rewrites the file so the choice survives restarts
	cfg.Backend = "sqlite"
	require.NoError(t, SaveConfig(path, cfg))

	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", reloaded.Backend)
	assert.Equal(t, cfg, reloaded)
}

func TestCreateConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, CreateConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	require.Error(t, CreateConfigFile(path), "refuses to overwrite")
}
