// Package coordinator is the façade agents and the orchestrator use to talk
// to the shared pool: claim, complete, fail, retry, heartbeat, read paths
// and the background lease reclaimer.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/l54808821/swarmpool/internal/config"
	"github.com/l54808821/swarmpool/internal/heartbeat"
	"github.com/l54808821/swarmpool/internal/logger"
	"github.com/l54808821/swarmpool/internal/store"
	"github.com/l54808821/swarmpool/pkg/types"
)

// Coordinator wires the task store, the heartbeat registry and the session
// record together. Safe for concurrent use by many agents.
type Coordinator struct {
	store    *store.Store
	registry heartbeat.Registry
	cfg      *config.CoordinatorConfig
	log      *zap.Logger

	cancelled atomic.Bool

	sessionMu sync.RWMutex
	session   *types.Session
}

// New creates a Coordinator over an opened database handle and a heartbeat
// registry backend.
func New(db *gorm.DB, registry heartbeat.Registry, cfg *config.CoordinatorConfig) *Coordinator {
	if cfg == nil {
		cfg = &config.Default().Coordinator
	}
	return &Coordinator{
		store:    store.New(db),
		registry: registry,
		cfg:      cfg,
		log:      logger.L().Named("coordinator"),
	}
}

// Store exposes the underlying task store.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// OpenSession attaches to the active session or creates one. Creation and
// attachment are both valid starts: the orchestrator creates, agents attach.
func (c *Coordinator) OpenSession(ctx context.Context, agentCount int) (*types.Session, error) {
	session, err := c.store.ActiveSession(ctx)
	if errors.Is(err, types.ErrSessionNotFound) {
		session, err = c.store.CreateSession(ctx, agentCount)
	}
	if err != nil {
		return nil, err
	}

	c.sessionMu.Lock()
	c.session = session
	c.sessionMu.Unlock()

	c.log.Info("session open",
		zap.String("session", session.ID),
		zap.Int("agents", session.AgentCount))
	return session, nil
}

// AttachSession binds to the active session without creating one. Read-only
// consumers use this so an inspection never opens a run.
func (c *Coordinator) AttachSession(ctx context.Context) (*types.Session, error) {
	session, err := c.store.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}

	c.sessionMu.Lock()
	c.session = session
	c.sessionMu.Unlock()
	return session, nil
}

// Session returns the cached session, or nil before OpenSession.
func (c *Coordinator) Session() *types.Session {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.session
}

// ClaimTask claims the next pending task for agentID. A lost race is not an
// error: the result carries success=false with a reason, and only a store
// failure returns err.
func (c *Coordinator) ClaimTask(ctx context.Context, agentID string) (*types.ClaimResult, error) {
	if c.cancelled.Load() {
		return &types.ClaimResult{Success: false, Reason: types.ReasonCancelled}, nil
	}

	res, err := c.store.ClaimNext(ctx, agentID, c.cfg.ClaimMaxAttempts)
	if err != nil {
		return nil, err
	}
	if res.Success {
		// Best-effort liveness update; a failed beat never voids the claim.
		if hbErr := c.registry.Beat(ctx, agentID, res.TaskID); hbErr != nil {
			c.log.Warn("heartbeat update after claim failed",
				zap.String("agent", agentID), zap.Error(hbErr))
		}
		c.log.Debug("task claimed",
			zap.String("agent", agentID), zap.String("task", res.TaskID))
	}
	return res, nil
}

// CompleteTask marks a claimed task done. Returns false without error when
// the ownership guard rejects the update (the task was reclaimed, finished
// or handed to another agent in the meantime).
func (c *Coordinator) CompleteTask(ctx context.Context, agentID, taskID, result string) (bool, error) {
	ok, err := c.store.Complete(ctx, agentID, taskID, result)
	if err != nil {
		return false, err
	}
	if !ok {
		c.log.Warn("stale completion ignored",
			zap.String("agent", agentID), zap.String("task", taskID))
		return false, nil
	}
	c.log.Info("task done",
		zap.String("agent", agentID), zap.String("task", taskID))
	return true, nil
}

// FailTask marks a claimed task failed under the same ownership guard.
func (c *Coordinator) FailTask(ctx context.Context, agentID, taskID, errMsg string) (bool, error) {
	ok, err := c.store.Fail(ctx, agentID, taskID, errMsg)
	if err != nil {
		return false, err
	}
	if !ok {
		c.log.Warn("stale failure ignored",
			zap.String("agent", agentID), zap.String("task", taskID))
		return false, nil
	}
	c.log.Info("task failed",
		zap.String("agent", agentID), zap.String("task", taskID), zap.String("error", errMsg))
	return true, nil
}

// RetryTask moves a failed task back to claimed for agentID.
func (c *Coordinator) RetryTask(ctx context.Context, agentID, taskID string) (*types.ClaimResult, error) {
	if c.cancelled.Load() {
		return &types.ClaimResult{Success: false, Reason: types.ReasonCancelled}, nil
	}

	res, err := c.store.Retry(ctx, agentID, taskID)
	if err != nil {
		return nil, err
	}
	if res.Success {
		if hbErr := c.registry.Beat(ctx, agentID, taskID); hbErr != nil {
			c.log.Warn("heartbeat update after retry failed",
				zap.String("agent", agentID), zap.Error(hbErr))
		}
		c.log.Info("task retried",
			zap.String("agent", agentID), zap.String("task", taskID))
	}
	return res, nil
}

// Heartbeat records agent liveness together with the task it currently
// holds. Failures are reported but must not abort the caller's work.
func (c *Coordinator) Heartbeat(ctx context.Context, agentID string) (bool, error) {
	currentTask, err := c.store.CurrentTaskOf(ctx, agentID)
	if err != nil {
		return false, err
	}
	if err := c.registry.Beat(ctx, agentID, currentTask); err != nil {
		return false, err
	}
	return true, nil
}

// HasPendingWork reports whether any pending task exists.
func (c *Coordinator) HasPendingWork(ctx context.Context) (bool, error) {
	return c.store.HasPending(ctx)
}

// IsSwarmComplete reports whether every task reached a terminal status.
func (c *Coordinator) IsSwarmComplete(ctx context.Context) (bool, error) {
	return c.store.IsComplete(ctx)
}

// GetStats returns a snapshot of task counts, active agents and elapsed
// session time.
func (c *Coordinator) GetStats(ctx context.Context) (*types.SwarmStats, error) {
	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	active, err := c.registry.CountActive(ctx, time.Now().Add(-c.cfg.LeaseTimeout()))
	if err != nil {
		return nil, err
	}

	stats := &types.SwarmStats{
		Pending:      counts[types.TaskStatusPending],
		Claimed:      counts[types.TaskStatusClaimed],
		Done:         counts[types.TaskStatusDone],
		Failed:       counts[types.TaskStatusFailed],
		ActiveAgents: active,
	}
	stats.Total = stats.Pending + stats.Claimed + stats.Done + stats.Failed

	if session := c.Session(); session != nil {
		if session.CompletedAt != nil {
			stats.Elapsed = session.CompletedAt.Sub(session.StartedAt)
		} else {
			stats.Elapsed = time.Since(session.StartedAt)
		}
	}
	return stats, nil
}

// GetTask returns one task by id.
func (c *Coordinator) GetTask(ctx context.Context, taskID string) (*types.Task, error) {
	return c.store.GetTask(ctx, taskID)
}

// GetAgentTasks returns every task attributed to agentID.
func (c *Coordinator) GetAgentTasks(ctx context.Context, agentID string) ([]types.Task, error) {
	return c.store.TasksByAgent(ctx, agentID)
}

// GetTasksWithStatus returns every task with the given status.
func (c *Coordinator) GetTasksWithStatus(ctx context.Context, status types.TaskStatus) ([]types.Task, error) {
	return c.store.TasksByStatus(ctx, status)
}

// SeedTasks inserts descriptions as pending tasks with sequential ids, so
// claim order follows seed order.
func (c *Coordinator) SeedTasks(ctx context.Context, descriptions []string) ([]*types.Task, error) {
	offset, err := c.store.CountTasks(ctx)
	if err != nil {
		return nil, err
	}

	tasks := make([]*types.Task, 0, len(descriptions))
	for i, desc := range descriptions {
		tasks = append(tasks, &types.Task{
			ID:          fmt.Sprintf("t-%06d", offset+int64(i)+1),
			Description: desc,
		})
	}
	if err := c.store.AddTasks(ctx, tasks); err != nil {
		return nil, err
	}
	c.log.Info("tasks seeded", zap.Int("count", len(tasks)))
	return tasks, nil
}

// Cancel stops future claims and marks the session inactive. Tasks already
// claimed are left for the reclaimer so partial progress survives.
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.cancelled.Store(true)

	session := c.Session()
	if session == nil {
		var err error
		session, err = c.store.ActiveSession(ctx)
		if errors.Is(err, types.ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	if err := c.store.CloseSession(ctx, session.ID); err != nil {
		return err
	}
	c.log.Info("swarm cancelled", zap.String("session", session.ID))
	return nil
}

// Cancelled reports whether Cancel was called on this coordinator.
func (c *Coordinator) Cancelled() bool {
	return c.cancelled.Load()
}

// CloseSessionIfComplete closes the active session once every task is
// terminal. Returns true when the session was (or already is) closed.
func (c *Coordinator) CloseSessionIfComplete(ctx context.Context) (bool, error) {
	done, err := c.store.IsComplete(ctx)
	if err != nil || !done {
		return false, err
	}

	session := c.Session()
	if session == nil {
		session, err = c.store.ActiveSession(ctx)
		if errors.Is(err, types.ErrSessionNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
	}
	if err := c.store.CloseSession(ctx, session.ID); err != nil {
		return false, err
	}
	c.log.Info("swarm complete", zap.String("session", session.ID))
	return true, nil
}
