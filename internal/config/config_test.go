package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost:5000", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*60, cfg.IdleTimeoutSeconds)
	assert.Equal(t, 5*60, cfg.SweepIntervalSeconds)

	assert.Equal(t, PoolConfig{Points: 100, WindowSeconds: 60, BlockSeconds: 60}, cfg.RateLimit.General)
	assert.Equal(t, PoolConfig{Points: 20, WindowSeconds: 60, BlockSeconds: 120}, cfg.RateLimit.AI)
	assert.Equal(t, PoolConfig{Points: 10, WindowSeconds: 60, BlockSeconds: 300}, cfg.RateLimit.Code)

	require.NoError(t, cfg.validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().ListenAddr, cfg.ListenAddr)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.ListenAddr = "localhost:9999"
	cfg.LogLevel = "debug"
	cfg.RateLimit.Code.Points = 3
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9999", loaded.ListenAddr)
	assert.Equal(t, "debug", loaded.LogLevel)
	assert.Equal(t, 3, loaded.RateLimit.Code.Points)
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("RELAIS_LISTEN_ADDR", "0.0.0.0:8080")
	t.Setenv("RELAIS_LOG_LEVEL", "error")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestValidateRejectsBadPools(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.AI.Points = 0
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.RateLimit.General.WindowSeconds = -1
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.IdleTimeoutSeconds = 0
	assert.Error(t, cfg.validate())
}
