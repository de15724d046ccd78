package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/l54808821/swarmpool/internal/agent"
	"github.com/l54808821/swarmpool/internal/database"
)

var agentID string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a worker agent against the pool",
	Long: `Runs the claim loop: pull the next pending task, execute its
description as a shell command, report done or failed, repeat until the
swarm completes. The coordinator itself treats the description as opaque;
interpreting it as a command is this worker's choice.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentID, "id", "", "agent identifier (default generated)")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if agentID == "" {
		agentID = "agent-" + uuid.New().String()[:8]
	}

	coord, db, err := openCoordinator(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if _, err := coord.OpenSession(ctx, cfg.Coordinator.AgentCount); err != nil {
		return err
	}

	worker := agent.New(agentID, coord, shellExecutor, &cfg.Coordinator)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Printf("agent %s stopped\n", agentID)
	return nil
}

// shellExecutor runs the task description through the shell and returns its
// combined output.
func shellExecutor(ctx context.Context, taskID, description string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", description).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, out)
	}
	return string(out), nil
}
