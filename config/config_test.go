package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, 300, cfg.Server.CacheTTLSeconds)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./database/wc-reservation.db", cfg.Database.DSN)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, "local", cfg.Avatar.Backend)
	assert.Equal(t, int64(1<<20), cfg.Avatar.MaxBytes)
	assert.Equal(t, "wc.transitions", cfg.Events.Queue)
	assert.Equal(t, "development", cfg.Log.Environment)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_PostgresKeepsEmptyDSN(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  driver: postgres\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.DSN)
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)
	assert.NotZero(t, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err)
}

func TestPushEnabled(t *testing.T) {
	assert.False(t, PushConfig{PublicKey: "pub"}.Enabled())
	assert.True(t, PushConfig{PublicKey: "pub", PrivateKey: "priv"}.Enabled())
}
