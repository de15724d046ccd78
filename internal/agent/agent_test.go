package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l54808821/swarmpool/internal/config"
	"github.com/l54808821/swarmpool/internal/coordinator"
	"github.com/l54808821/swarmpool/internal/database"
	"github.com/l54808821/swarmpool/internal/heartbeat"
	"github.com/l54808821/swarmpool/pkg/types"
)

func newTestSwarm(t *testing.T) (*coordinator.Coordinator, *config.CoordinatorConfig) {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "swarm.db"),
		MaxOpenConns: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	cfg := config.Default().Coordinator
	cfg.ClaimBackoffMs = 10
	cfg.HeartbeatIntervalMs = 50
	return coordinator.New(db, heartbeat.NewDBRegistry(db), &cfg), &cfg
}

func TestAgentsDrainPool(t *testing.T) {
	coord, cfg := newTestSwarm(t)
	ctx := context.Background()

	descriptions := make([]string, 10)
	for i := range descriptions {
		descriptions[i] = fmt.Sprintf("job %d", i)
	}
	_, err := coord.SeedTasks(ctx, descriptions)
	require.NoError(t, err)

	exec := func(ctx context.Context, taskID, description string) (string, error) {
		return "done: " + description, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := New(fmt.Sprintf("agent-%d", i), coord, exec, cfg)
			errs[i] = a.Run(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	done, err := coord.GetTasksWithStatus(ctx, types.TaskStatusDone)
	require.NoError(t, err)
	assert.Len(t, done, 10)

	complete, err := coord.IsSwarmComplete(ctx)
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestAgentReportsFailures(t *testing.T) {
	coord, cfg := newTestSwarm(t)
	ctx := context.Background()

	_, err := coord.SeedTasks(ctx, []string{"doomed job"})
	require.NoError(t, err)

	exec := func(ctx context.Context, taskID, description string) (string, error) {
		return "", errors.New("cannot comply")
	}

	a := New("agent-1", coord, exec, cfg)
	require.NoError(t, a.Run(ctx))

	failed, err := coord.GetTasksWithStatus(ctx, types.TaskStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "cannot comply", failed[0].Error)
}

func TestAgentStopsOnCancel(t *testing.T) {
	coord, cfg := newTestSwarm(t)
	ctx := context.Background()

	_, err := coord.SeedTasks(ctx, []string{"never claimed"})
	require.NoError(t, err)
	require.NoError(t, coord.Cancel(ctx))

	a := New("agent-1", coord, func(ctx context.Context, taskID, description string) (string, error) {
		t.Error("executor must not run after cancel")
		return "", nil
	}, cfg)

	doneCh := make(chan error, 1)
	go func() { doneCh <- a.Run(ctx) }()

	select {
	case err := <-doneCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("agent did not stop after cancel")
	}

	// The pending task was never touched.
	pending, err := coord.GetTasksWithStatus(ctx, types.TaskStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAgentStopsOnContextDone(t *testing.T) {
	coord, cfg := newTestSwarm(t)

	ctx, cancel := context.WithCancel(context.Background())
	a := New("agent-1", coord, func(ctx context.Context, taskID, description string) (string, error) {
		return "", nil
	}, cfg)

	doneCh := make(chan error, 1)
	go func() { doneCh <- a.Run(ctx) }()

	// An empty pool also counts as complete, so the agent may exit on its
	// own; cancellation must stop it promptly either way.
	cancel()

	select {
	case <-doneCh:
	case <-time.After(3 * time.Second):
		t.Fatal("agent did not stop after context cancellation")
	}
}
