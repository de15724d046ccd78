package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Log         LogConfig         `yaml:"log"`
}

// AppConfig holds application metadata.
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"` // dev, test, prod
}

// CoordinatorConfig tunes the claim/lease machinery.
type CoordinatorConfig struct {
	AgentCount          int    `yaml:"agent_count"`           // advisory bound on the agent pool
	LeaseTimeoutMs      int64  `yaml:"lease_timeout_ms"`      // default 300000
	HeartbeatIntervalMs int64  `yaml:"heartbeat_interval_ms"` // default 60000
	CleanupIntervalMs   int64  `yaml:"cleanup_interval_ms"`   // default 60000
	ClaimMaxAttempts    int    `yaml:"claim_max_attempts"`    // default 5
	ClaimBackoffMs      int64  `yaml:"claim_backoff_ms"`      // default 1000, idle sleep between empty claims
	HeartbeatBackend    string `yaml:"heartbeat_backend"`     // database, redis
}

// LeaseTimeout returns the lease window as a duration.
func (c *CoordinatorConfig) LeaseTimeout() time.Duration {
	return time.Duration(c.LeaseTimeoutMs) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat period as a duration.
func (c *CoordinatorConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// CleanupInterval returns the reclaimer sweep period as a duration.
func (c *CoordinatorConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMs) * time.Millisecond
}

// ClaimBackoff returns the idle backoff between unsuccessful claims.
func (c *CoordinatorConfig) ClaimBackoff() time.Duration {
	return time.Duration(c.ClaimBackoffMs) * time.Millisecond
}

// DatabaseConfig holds the durable store connection settings.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // sqlite, mysql, postgres
	Path            string `yaml:"path"`   // sqlite only
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	Charset         string `yaml:"charset"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// RedisConfig holds the optional redis heartbeat backend settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	Output     string `yaml:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

var (
	globalConfig *Config
	once         sync.Once
)

// Default returns a configuration with the documented defaults applied.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "swarmpool",
			Version: "0.1.0",
			Env:     "dev",
		},
		Coordinator: CoordinatorConfig{
			AgentCount:          4,
			LeaseTimeoutMs:      300000,
			HeartbeatIntervalMs: 60000,
			CleanupIntervalMs:   60000,
			ClaimMaxAttempts:    5,
			ClaimBackoffMs:      1000,
			HeartbeatBackend:    "database",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "swarmpool.db",
			MaxIdleConns:    2,
			MaxOpenConns:    10,
			ConnMaxLifetime: 3600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// LoadConfig loads the configuration file at path, applying defaults for
// unset coordinator fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	once.Do(func() {
		globalConfig = cfg
	})

	return cfg, nil
}

// applyDefaults backfills zero values that would break the lease machinery.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Coordinator.LeaseTimeoutMs <= 0 {
		c.Coordinator.LeaseTimeoutMs = d.Coordinator.LeaseTimeoutMs
	}
	if c.Coordinator.HeartbeatIntervalMs <= 0 {
		c.Coordinator.HeartbeatIntervalMs = d.Coordinator.HeartbeatIntervalMs
	}
	if c.Coordinator.CleanupIntervalMs <= 0 {
		c.Coordinator.CleanupIntervalMs = d.Coordinator.CleanupIntervalMs
	}
	if c.Coordinator.ClaimMaxAttempts <= 0 {
		c.Coordinator.ClaimMaxAttempts = d.Coordinator.ClaimMaxAttempts
	}
	if c.Coordinator.ClaimBackoffMs <= 0 {
		c.Coordinator.ClaimBackoffMs = d.Coordinator.ClaimBackoffMs
	}
	if c.Coordinator.HeartbeatBackend == "" {
		c.Coordinator.HeartbeatBackend = d.Coordinator.HeartbeatBackend
	}
	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
}

// GetConfig returns the global configuration.
func GetConfig() *Config {
	return globalConfig
}

// SetConfig sets the global configuration.
func SetConfig(cfg *Config) {
	globalConfig = cfg
}
