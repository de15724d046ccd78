package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/l54808821/swarmpool/internal/config"
	"github.com/l54808821/swarmpool/internal/coordinator"
	"github.com/l54808821/swarmpool/internal/database"
	"github.com/l54808821/swarmpool/internal/heartbeat"
	"github.com/l54808821/swarmpool/internal/logger"
)

// Version is the current version.
const Version = "0.1.0"

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "swarmpool",
	Short: "Concurrent task-claiming coordinator for agent swarms",
	Long: `swarmpool coordinates independent worker agents pulling non-overlapping
tasks from a shared durable pool. Claims are atomic compare-and-swap
updates, liveness is tracked through heartbeats, and expired leases are
returned to the pool automatically.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration file, falling back to defaults, and
// initializes the logger.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	config.SetConfig(cfg)
	return cfg, nil
}

// openCoordinator builds a coordinator from the configuration, choosing the
// heartbeat backend.
func openCoordinator(cfg *config.Config) (*coordinator.Coordinator, *gorm.DB, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	var registry heartbeat.Registry
	switch cfg.Coordinator.HeartbeatBackend {
	case "redis":
		// TTL beyond two leases so the reclaimer can still read a stale beat.
		registry, err = heartbeat.NewRedisRegistry(&cfg.Redis, 2*cfg.Coordinator.LeaseTimeout())
		if err != nil {
			database.Close(db)
			return nil, nil, fmt.Errorf("open redis registry: %w", err)
		}
	default:
		registry = heartbeat.NewDBRegistry(db)
	}

	return coordinator.New(db, registry, &cfg.Coordinator), db, nil
}
