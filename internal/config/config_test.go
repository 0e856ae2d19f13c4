package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 3, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.RemoteTimeout())

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg, again)
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"remote":{"base_url":"https://erp.local/"},"outbox":{"max_attempts":0}}`), 0o644))

	cfg, _, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, "https://erp.local", cfg.Remote.BaseURL)
	assert.Equal(t, "/api/health", cfg.Remote.HealthPath)
	assert.Equal(t, 3, cfg.Outbox.MaxAttempts)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, _, err := LoadOrCreate(path)
	require.NoError(t, err)

	t.Setenv("SFA_REMOTE_BASE_URL", "https://override.local")
	t.Setenv("SFA_OUTBOX_MAX_ATTEMPTS", "5")
	t.Setenv("SFA_STORE_DRIVER", "postgres")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://override.local", cfg.Remote.BaseURL)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
	assert.Equal(t, "postgres", cfg.Store.Driver)

	// plik bez zmian
	disk, _, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", disk.Store.Driver)
}

func TestLoadBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))

	_, _, err := LoadOrCreate(path)
	assert.Error(t, err)
}
