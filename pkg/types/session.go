package types

import "time"

// Session records metadata for one coordination run. It is observational
// only; no correctness decision reads it.
type Session struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	AgentCount  int        `gorm:"not null;default:0" json:"agentCount"`
	StartedAt   time.Time  `gorm:"not null" json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Active      bool       `gorm:"not null;default:true;index" json:"active"`
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "swarm_session"
}

// HeartbeatRecord is one agent's self-reported liveness row. LastHeartbeat is
// monotonically non-decreasing; staleness alone is never authoritative proof
// of failure.
type HeartbeatRecord struct {
	AgentID       string    `gorm:"primaryKey;size:64" json:"agentId"`
	LastHeartbeat time.Time `gorm:"not null;index" json:"lastHeartbeat"`
	CurrentTaskID string    `gorm:"size:64" json:"currentTaskId,omitempty"`
}

// TableName returns the table name for HeartbeatRecord.
func (HeartbeatRecord) TableName() string {
	return "swarm_heartbeat"
}
