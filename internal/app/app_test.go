package app

import (
	"context"
	"path/filepath"
	"testing"

	conf "github.com/bartek5186/sfa-offline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) {
	t.Helper()
	cfg := conf.Default()
	cfg.API.Enabled = false
	cfg.Remote.BaseURL = "http://127.0.0.1:1"
	cfg.Password.MemoryKB = 1024
	cfg.Password.Time = 1
	require.NoError(t, conf.Save(filepath.Join(dir, "config.json"), cfg))
}

func TestNewWiresComponentsAndKeepsDeviceID(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir)
	ctx := context.Background()

	a, err := New(dir, false)
	require.NoError(t, err)
	assert.Nil(t, a.API)
	assert.False(t, a.Monitor.Online())
	id, err := a.Store.GetKV(ctx, kvDeviceID)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	a.Close()

	b, err := New(dir, false)
	require.NoError(t, err)
	defer b.Close()
	again, err := b.Store.GetKV(ctx, kvDeviceID)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestReloadUpdatesConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir)
	a, err := New(dir, false)
	require.NoError(t, err)
	defer a.Close()

	cfg := conf.Default()
	cfg.API.Enabled = false
	cfg.Sync.Schedule = "@every 1h"
	require.NoError(t, conf.Save(a.CfgPath, cfg))

	require.NoError(t, a.Reload())
	assert.Equal(t, "@every 1h", a.Config().Sync.Schedule)
}
