package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/l54808821/swarmpool/internal/database"
)

var pollInterval time.Duration

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the lease reclaimer until the swarm completes",
	Long: `Runs the periodic lease sweep: claimed tasks whose lease expired and
whose owner stopped heartbeating are returned to pending. Exits once every
task reaches a terminal status (closing the session) or on SIGINT/SIGTERM,
which cancels the run and stops future claims.`,
	RunE: runCoordinator,
}

func init() {
	coordinatorCmd.Flags().DurationVar(&pollInterval, "poll", 5*time.Second, "completion poll interval")
	rootCmd.AddCommand(coordinatorCmd)
}

func runCoordinator(cmd *cobra.Command, args []string) error {
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
	session, err := coord.OpenSession(ctx, cfg.Coordinator.AgentCount)
	if err != nil {
		return err
	}
	fmt.Printf("coordinating session %s (lease %s, sweep every %s)\n",
		session.ID, cfg.Coordinator.LeaseTimeout(), cfg.Coordinator.CleanupInterval())

	reclaimer, err := coord.StartReclaimer()
	if err != nil {
		return err
	}
	defer reclaimer.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			fmt.Println("cancelling swarm, claimed tasks will be reclaimed")
			return coord.Cancel(ctx)
		case <-ticker.C:
			closed, err := coord.CloseSessionIfComplete(ctx)
			if err != nil {
				return err
			}
			if closed {
				stats, err := coord.GetStats(ctx)
				if err == nil {
					fmt.Printf("swarm complete: %d done, %d failed in %s\n",
						stats.Done, stats.Failed, stats.Elapsed.Round(time.Millisecond))
				}
				return nil
			}
		}
	}
}
