package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(300000), cfg.Coordinator.LeaseTimeoutMs)
	assert.Equal(t, int64(60000), cfg.Coordinator.HeartbeatIntervalMs)
	assert.Equal(t, int64(60000), cfg.Coordinator.CleanupIntervalMs)
	assert.Equal(t, "database", cfg.Coordinator.HeartbeatBackend)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Coordinator.LeaseTimeout())
}

func TestLoadConfig(t *testing.T) {
	content := `
app:
  name: testpool
  env: test
coordinator:
  agent_count: 8
  lease_timeout_ms: 120000
  heartbeat_backend: redis
database:
  driver: postgres
  host: localhost
  port: 5432
  database: swarm
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "testpool", cfg.App.Name)
	assert.Equal(t, 8, cfg.Coordinator.AgentCount)
	assert.Equal(t, 2*time.Minute, cfg.Coordinator.LeaseTimeout())
	assert.Equal(t, "redis", cfg.Coordinator.HeartbeatBackend)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched coordinator fields fall back to defaults.
	assert.Equal(t, int64(60000), cfg.Coordinator.HeartbeatIntervalMs)
	assert.Equal(t, int64(60000), cfg.Coordinator.CleanupIntervalMs)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
