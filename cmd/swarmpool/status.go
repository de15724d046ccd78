package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/l54808821/swarmpool/internal/database"
	"github.com/l54808821/swarmpool/pkg/types"
)

var statusAgent string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a snapshot of the pool and its agents",
	RunE:  runStatus,
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Run one lease sweep and report how many tasks were reclaimed",
	RunE:  runReclaim,
}

func init() {
	statusCmd.Flags().StringVar(&statusAgent, "agent", "", "also list tasks attributed to this agent")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reclaimCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	coord, db, err := openCoordinator(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	ctx := context.Background()
	if _, err := coord.AttachSession(ctx); err != nil && !errors.Is(err, types.ErrSessionNotFound) {
		return err
	}

	stats, err := coord.GetStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("total:    %d\n", stats.Total)
	fmt.Printf("pending:  %d\n", stats.Pending)
	fmt.Printf("claimed:  %d\n", stats.Claimed)
	fmt.Printf("done:     %d\n", stats.Done)
	fmt.Printf("failed:   %d\n", stats.Failed)
	fmt.Printf("agents:   %d active\n", stats.ActiveAgents)
	fmt.Printf("elapsed:  %s\n", stats.Elapsed.Round(time.Millisecond))

	if statusAgent != "" {
		tasks, err := coord.GetAgentTasks(ctx, statusAgent)
		if err != nil {
			return err
		}
		fmt.Printf("\ntasks for %s:\n", statusAgent)
		for _, t := range tasks {
			fmt.Printf("  %s  %-8s  %s\n", t.ID, t.Status, t.Description)
		}
	}
	return nil
}

func runReclaim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	coord, db, err := openCoordinator(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	n, err := coord.CleanupStaleClaims(context.Background(), cfg.Coordinator.LeaseTimeout())
	if err != nil {
		return err
	}
	fmt.Printf("reclaimed %d tasks\n", n)
	return nil
}
