package heartbeat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/l54808821/swarmpool/pkg/types"
)

// DBRegistry stores heartbeats in the swarm_heartbeat table, next to the
// tasks they guard. This is the default backend.
type DBRegistry struct {
	db *gorm.DB
}

// NewDBRegistry creates a database-backed registry.
func NewDBRegistry(db *gorm.DB) *DBRegistry {
	return &DBRegistry{db: db}
}

// Beat upserts the agent's heartbeat row. Each agent writes only its own
// row with the current wall clock, which keeps last_heartbeat monotonically
// non-decreasing.
func (r *DBRegistry) Beat(ctx context.Context, agentID, currentTaskID string) error {
	if agentID == "" {
		return types.NewAppError(types.ErrCodeInvalidParameter, "agent id cannot be empty")
	}

	now := time.Now()
	rec := types.HeartbeatRecord{
		AgentID:       agentID,
		LastHeartbeat: now,
		CurrentTaskID: currentTaskID,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "agent_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_heartbeat":  now,
			"current_task_id": currentTaskID,
		}),
	}).Create(&rec).Error
	if err != nil {
		return types.StoreUnavailable(err)
	}
	return nil
}

// LastSeen returns the agent's last heartbeat time.
func (r *DBRegistry) LastSeen(ctx context.Context, agentID string) (time.Time, bool, error) {
	var rec types.HeartbeatRecord
	err := r.db.WithContext(ctx).First(&rec, "agent_id = ?", agentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, types.StoreUnavailable(err)
	}
	return rec.LastHeartbeat, true, nil
}

// CountActive counts agents whose heartbeat is at or after since.
func (r *DBRegistry) CountActive(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&types.HeartbeatRecord{}).
		Where("last_heartbeat >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, types.StoreUnavailable(err)
	}
	return count, nil
}
