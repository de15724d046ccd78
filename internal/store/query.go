package store

import (
	"context"

	"github.com/l54808821/swarmpool/pkg/types"
)

// HasPending reports whether any pending task exists. Snapshot read.
func (s *Store) HasPending(ctx context.Context) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&types.Task{}).
		Where("status = ?", types.TaskStatusPending).
		Count(&count).Error
	if err != nil {
		return false, types.StoreUnavailable(err)
	}
	return count > 0, nil
}

// IsComplete reports whether no task is pending or claimed.
func (s *Store) IsComplete(ctx context.Context) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&types.Task{}).
		Where("status IN ?", []types.TaskStatus{types.TaskStatusPending, types.TaskStatusClaimed}).
		Count(&count).Error
	if err != nil {
		return false, types.StoreUnavailable(err)
	}
	return count == 0, nil
}

// CountByStatus returns per-status task counts. Missing statuses count zero.
func (s *Store) CountByStatus(ctx context.Context) (map[types.TaskStatus]int64, error) {
	var rows []struct {
		Status types.TaskStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&types.Task{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, types.StoreUnavailable(err)
	}

	counts := map[types.TaskStatus]int64{
		types.TaskStatusPending: 0,
		types.TaskStatusClaimed: 0,
		types.TaskStatusDone:    0,
		types.TaskStatusFailed:  0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// TasksByAgent returns every task currently or last claimed by agentID.
func (s *Store) TasksByAgent(ctx context.Context, agentID string) ([]types.Task, error) {
	var tasks []types.Task
	err := s.db.WithContext(ctx).
		Where("claimed_by = ?", agentID).
		Order("id").
		Find(&tasks).Error
	if err != nil {
		return nil, types.StoreUnavailable(err)
	}
	return tasks, nil
}

// TasksByStatus returns every task with the given status.
func (s *Store) TasksByStatus(ctx context.Context, status types.TaskStatus) ([]types.Task, error) {
	if !status.Valid() {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter, "unknown task status: "+string(status))
	}
	var tasks []types.Task
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id").
		Find(&tasks).Error
	if err != nil {
		return nil, types.StoreUnavailable(err)
	}
	return tasks, nil
}

// CurrentTaskOf returns the id of the task the agent most recently claimed
// and still holds, or "" if it holds none.
func (s *Store) CurrentTaskOf(ctx context.Context, agentID string) (string, error) {
	var tasks []types.Task
	err := s.db.WithContext(ctx).
		Select("id").
		Where("claimed_by = ? AND status = ?", agentID, types.TaskStatusClaimed).
		Order("claimed_at DESC").
		Limit(1).
		Find(&tasks).Error
	if err != nil {
		return "", types.StoreUnavailable(err)
	}
	if len(tasks) == 0 {
		return "", nil
	}
	return tasks[0].ID, nil
}

// CountTasks returns the total number of tasks.
func (s *Store) CountTasks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&types.Task{}).Count(&count).Error
	if err != nil {
		return 0, types.StoreUnavailable(err)
	}
	return count, nil
}
