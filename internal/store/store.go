// Package store implements the durable task pool. All mutation goes through
// conditional updates so that concurrent agents racing for the same row are
// serialized by the database, not by in-process locks.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/l54808821/swarmpool/pkg/types"
)

// Store owns the swarm_task and swarm_session tables.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of an opened database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for registry construction and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// AddTask inserts one pending task. An empty id gets a generated uuid.
func (s *Store) AddTask(ctx context.Context, id, description string) (*types.Task, error) {
	if id == "" {
		id = uuid.New().String()
	}
	task := &types.Task{
		ID:          id,
		Description: description,
		Status:      types.TaskStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, types.StoreUnavailable(err)
	}
	return task, nil
}

// AddTasks inserts a batch of pending tasks in one statement.
func (s *Store) AddTasks(ctx context.Context, tasks []*types.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		t.Status = types.TaskStatusPending
	}
	if err := s.db.WithContext(ctx).Create(tasks).Error; err != nil {
		return types.StoreUnavailable(err)
	}
	return nil
}

// GetTask returns a single task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	var task types.Task
	err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrTaskNotFound
	}
	if err != nil {
		return nil, types.StoreUnavailable(err)
	}
	return &task, nil
}

// ClaimNext claims the lowest-id pending task for agentID.
//
// Each attempt scans for the first pending row, then tries a conditional
// update guarded by status='pending'. Zero rows affected means another agent
// won that specific row; the loop rescans for the next candidate rather than
// assuming the pool is empty. After maxAttempts lost races the caller gets a
// contention result and is expected to retry later.
func (s *Store) ClaimNext(ctx context.Context, agentID string, maxAttempts int) (*types.ClaimResult, error) {
	if agentID == "" {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter, "agent id cannot be empty")
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var candidate types.Task
		err := s.db.WithContext(ctx).
			Where("status = ?", types.TaskStatusPending).
			Order("id").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.ClaimResult{Success: false, Reason: types.ReasonNoPending}, nil
		}
		if err != nil {
			return nil, types.StoreUnavailable(err)
		}

		now := time.Now()
		res := s.db.WithContext(ctx).Model(&types.Task{}).
			Where("id = ? AND status = ?", candidate.ID, types.TaskStatusPending).
			Updates(map[string]interface{}{
				"status":     types.TaskStatusClaimed,
				"claimed_by": agentID,
				"claimed_at": now,
			})
		if res.Error != nil {
			return nil, types.StoreUnavailable(res.Error)
		}
		if res.RowsAffected == 1 {
			return &types.ClaimResult{
				Success:     true,
				TaskID:      candidate.ID,
				Description: candidate.Description,
			}, nil
		}
		// Lost the race for this row; rescan for the next candidate.
	}

	return &types.ClaimResult{Success: false, Reason: types.ReasonContention}, nil
}

// Complete transitions a claimed task to done. The update is guarded by
// claimed_by = agentID: if the task was reclaimed and re-claimed by another
// agent in the meantime, zero rows match and the stale completion is a
// no-op, reported as false without an error.
func (s *Store) Complete(ctx context.Context, agentID, taskID, result string) (bool, error) {
	return s.finish(ctx, agentID, taskID, types.TaskStatusDone, map[string]interface{}{
		"result": result,
	})
}

// Fail transitions a claimed task to failed under the same ownership guard
// as Complete.
func (s *Store) Fail(ctx context.Context, agentID, taskID, errMsg string) (bool, error) {
	return s.finish(ctx, agentID, taskID, types.TaskStatusFailed, map[string]interface{}{
		"error": errMsg,
	})
}

func (s *Store) finish(ctx context.Context, agentID, taskID string, status types.TaskStatus, extra map[string]interface{}) (bool, error) {
	if agentID == "" || taskID == "" {
		return false, types.NewAppError(types.ErrCodeInvalidParameter, "agent id and task id cannot be empty")
	}

	updates := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).Model(&types.Task{}).
		Where("id = ? AND status = ? AND claimed_by = ?", taskID, types.TaskStatusClaimed, agentID).
		Updates(updates)
	if res.Error != nil {
		return false, types.StoreUnavailable(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Retry transitions a failed task back to claimed for the requesting agent,
// guarded by status='failed'.
func (s *Store) Retry(ctx context.Context, agentID, taskID string) (*types.ClaimResult, error) {
	if agentID == "" || taskID == "" {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter, "agent id and task id cannot be empty")
	}

	var task types.Task
	err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &types.ClaimResult{Success: false, Reason: types.ReasonTaskNotFound}, nil
	}
	if err != nil {
		return nil, types.StoreUnavailable(err)
	}

	res := s.db.WithContext(ctx).Model(&types.Task{}).
		Where("id = ? AND status = ?", taskID, types.TaskStatusFailed).
		Updates(map[string]interface{}{
			"status":       types.TaskStatusClaimed,
			"claimed_by":   agentID,
			"claimed_at":   time.Now(),
			"completed_at": nil,
			"error":        "",
		})
	if res.Error != nil {
		return nil, types.StoreUnavailable(res.Error)
	}
	if res.RowsAffected != 1 {
		return &types.ClaimResult{Success: false, Reason: types.ReasonNotFailed}, nil
	}

	return &types.ClaimResult{
		Success:     true,
		TaskID:      task.ID,
		Description: task.Description,
	}, nil
}

// ListExpiredClaims returns claimed tasks whose claim is older than cutoff.
// This is the candidate set for reclamation; the per-row release still
// re-checks every condition.
func (s *Store) ListExpiredClaims(ctx context.Context, cutoff time.Time) ([]types.Task, error) {
	var tasks []types.Task
	err := s.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ?", types.TaskStatusClaimed, cutoff).
		Order("id").
		Find(&tasks).Error
	if err != nil {
		return nil, types.StoreUnavailable(err)
	}
	return tasks, nil
}

// Release returns one expired claim to pending, clearing ownership. The
// guard repeats owner and claim age so a concurrent complete, fail or fresh
// re-claim makes this a harmless zero-row update.
func (s *Store) Release(ctx context.Context, taskID, agentID string, cutoff time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&types.Task{}).
		Where("id = ? AND status = ? AND claimed_by = ? AND claimed_at < ?",
			taskID, types.TaskStatusClaimed, agentID, cutoff).
		Updates(map[string]interface{}{
			"status":     types.TaskStatusPending,
			"claimed_by": "",
			"claimed_at": nil,
		})
	if res.Error != nil {
		return false, types.StoreUnavailable(res.Error)
	}
	return res.RowsAffected == 1, nil
}
