package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8085", cfg.ListenAddr)
	assert.Equal(t, "file", cfg.StoreBackend)
	assert.Equal(t, "hub-state.json", cfg.StatePath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HUB_LISTEN_ADDR", ":9090")
	t.Setenv("HUB_STORE_BACKEND", "redis")
	t.Setenv("HUB_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("HUB_REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":7000\"\nlog_level: debug\n"), 0o600))
	t.Setenv("HUB_CONFIG_FILE", path)
	t.Setenv("HUB_LISTEN_ADDR", ":7001")

	cfg, err := Load()
	require.NoError(t, err)
	// Environment beats the file; the file beats defaults.
	assert.Equal(t, ":7001", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("HUB_STORE_BACKEND", "etcd")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}
