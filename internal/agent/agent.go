// Package agent implements the worker loop: claim a task, execute its
// opaque payload, report the outcome, repeat. A separate ticker goroutine
// emits heartbeats so long-running work never starves liveness reporting.
package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/l54808821/swarmpool/internal/config"
	"github.com/l54808821/swarmpool/internal/coordinator"
	"github.com/l54808821/swarmpool/internal/logger"
	"github.com/l54808821/swarmpool/internal/utils"
	"github.com/l54808821/swarmpool/pkg/types"
)

// ExecuteFunc runs one task's opaque payload and returns its result. The
// coordinator never interprets the description; only the executor does.
type ExecuteFunc func(ctx context.Context, taskID, description string) (string, error)

// storeRetryMax caps the backoff while the store is unreachable.
const storeRetryMax = 30 * time.Second

// Agent is one worker in the swarm.
type Agent struct {
	id          string
	coord       *coordinator.Coordinator
	exec        ExecuteFunc
	hbInterval  time.Duration
	idleBackoff time.Duration
	log         *zap.Logger
}

// New creates an agent bound to a coordinator and an executor.
func New(id string, coord *coordinator.Coordinator, exec ExecuteFunc, cfg *config.CoordinatorConfig) *Agent {
	if cfg == nil {
		cfg = &config.Default().Coordinator
	}
	return &Agent{
		id:          id,
		coord:       coord,
		exec:        exec,
		hbInterval:  cfg.HeartbeatInterval(),
		idleBackoff: cfg.ClaimBackoff(),
		log:         logger.L().Named("agent." + id),
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string {
	return a.id
}

// Run executes the claim loop until the swarm completes, the run is
// cancelled, or ctx is done. Execution of the payload happens entirely
// outside any store transaction.
func (a *Agent) Run(ctx context.Context) error {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	utils.SafeGoWithName("heartbeat."+a.id, func() {
		a.heartbeatLoop(hbCtx)
	})

	storeBackoff := a.idleBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := a.coord.ClaimTask(ctx, a.id)
		if err != nil {
			// The store may recover; pause and retry instead of dying.
			a.log.Warn("claim failed, backing off",
				zap.Duration("backoff", storeBackoff), zap.Error(err))
			if !sleep(ctx, storeBackoff) {
				return ctx.Err()
			}
			storeBackoff = min(storeBackoff*2, storeRetryMax)
			continue
		}
		storeBackoff = a.idleBackoff

		if !res.Success {
			if res.Reason == types.ReasonCancelled {
				a.log.Info("swarm cancelled, stopping")
				return nil
			}
			done, err := a.coord.IsSwarmComplete(ctx)
			if err == nil && done {
				a.log.Info("no work left, stopping")
				return nil
			}
			// Contention or a pool drained by faster agents: idle briefly.
			if !sleep(ctx, a.idleBackoff) {
				return ctx.Err()
			}
			continue
		}

		a.runTask(ctx, res.TaskID, res.Description)
	}
}

// runTask executes one claimed task and reports the outcome. Both reports
// go through the ownership guard; a false return means the lease expired
// mid-flight and another agent owns the task now.
func (a *Agent) runTask(ctx context.Context, taskID, description string) {
	a.log.Info("task started", zap.String("task", taskID))

	result, execErr := a.exec(ctx, taskID, description)
	if execErr != nil {
		if _, err := a.coord.FailTask(ctx, a.id, taskID, execErr.Error()); err != nil {
			a.log.Warn("failure report did not reach the store",
				zap.String("task", taskID), zap.Error(err))
		}
		return
	}
	if _, err := a.coord.CompleteTask(ctx, a.id, taskID, result); err != nil {
		a.log.Warn("completion report did not reach the store",
			zap.String("task", taskID), zap.Error(err))
	}
}

// heartbeatLoop pings liveness on its own timer, independent of the work
// loop. Failed beats are logged and dropped; they never stop execution.
func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.hbInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.coord.Heartbeat(ctx, a.id); err != nil {
				a.log.Warn("heartbeat dropped", zap.Error(err))
			}
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
